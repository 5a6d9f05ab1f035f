package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"lms/apperror"

	"github.com/google/uuid"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"
)

const ProviderMidtrans = "midtrans"

// MidtransGateway creates Snap transactions. The order id is the gateway
// reference quoted back by notifications.
type MidtransGateway struct {
	client    snap.Client
	serverKey string
}

func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	g := &MidtransGateway{serverKey: serverKey}
	if production {
		g.client.New(serverKey, midtrans.Production)
	} else {
		g.client.New(serverKey, midtrans.Sandbox)
	}
	return g
}

func (g *MidtransGateway) Name() string { return ProviderMidtrans }

func (g *MidtransGateway) Charge(_ context.Context, req ChargeRequest) (*Charge, error) {
	if req.Amount <= 0 {
		return nil, apperror.InvalidRequest("Invalid payment amount!")
	}
	orderID := fmt.Sprintf("LMS-%d-%s", req.PaymentID, uuid.NewString()[:8])

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			Phone: req.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:       describeCourse(req.CourseID),
				Price:    req.Amount,
				Qty:      1,
				Name:     truncate(req.Description, 50),
				Category: "COURSE",
			},
		},
	}

	resp, merr := g.client.CreateTransaction(snapReq)
	if merr != nil {
		return nil, errors.Wrap(merr, "midtrans create transaction")
	}
	return &Charge{Reference: orderID, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

type midtransNotification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	SettlementTime    string `json:"settlement_time"`
}

// ParseMidtransNotification verifies and normalizes a Midtrans HTTP
// notification. final is false for statuses that settle nothing yet
// (pending, challenged captures, refunds).
func ParseMidtransNotification(raw []byte, serverKey string) (cb Callback, final bool, err error) {
	var n midtransNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Callback{}, false, apperror.InvalidRequest("Invalid Midtrans notification payload!")
	}
	if n.OrderID == "" {
		return Callback{}, false, apperror.InvalidRequest("Missing order_id in Midtrans notification!")
	}

	want := strings.ToLower(n.SignatureKey)
	got := midtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	if want == "" || want != got {
		return Callback{}, false, apperror.Forbidden("Invalid Midtrans signature!")
	}

	cb = Callback{
		Provider:         ProviderMidtrans,
		GatewayReference: n.OrderID,
		ResultDesc:       "midtrans: " + n.TransactionStatus,
		Metadata: map[string]any{
			"transaction_id":     n.TransactionID,
			"transaction_status": n.TransactionStatus,
			"payment_type":       n.PaymentType,
			"gross_amount":       n.GrossAmount,
			"fraud_status":       n.FraudStatus,
			"settlement_time":    n.SettlementTime,
		},
		Raw: raw,
	}
	if n.GrossAmount != "" {
		if cb.Amount, err = parseAmount(n.GrossAmount); err != nil {
			return Callback{}, false, err
		}
	}

	status := strings.ToLower(n.TransactionStatus)
	fraud := strings.ToLower(n.FraudStatus)
	switch {
	case status == "settlement", status == "capture" && (fraud == "accept" || fraud == ""):
		code := 0
		cb.ResultCode = &code
		return cb, true, nil
	case status == "deny", status == "cancel", status == "expire", status == "failure",
		status == "capture" && fraud == "deny":
		code := failureCode(n.StatusCode)
		cb.ResultCode = &code
		return cb, true, nil
	}
	return cb, false, nil
}

func midtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func failureCode(statusCode string) int {
	code, err := strconv.Atoi(statusCode)
	if err != nil || code == 0 {
		return 1
	}
	return code
}
