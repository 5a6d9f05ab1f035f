package payment

import (
	"context"
)

// ChargeRequest asks a gateway to collect Amount for one Payment.
type ChargeRequest struct {
	PaymentID   uint
	CourseID    uint
	Amount      int64
	Phone       string
	Description string
}

// Charge is the gateway's answer to a charge request. Reference is what the
// gateway will quote back in its callback.
type Charge struct {
	Reference       string `json:"-"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	Token           string `json:"token,omitempty"`
	CustomerMessage string `json:"customer_message,omitempty"`
}

type Gateway interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
}
