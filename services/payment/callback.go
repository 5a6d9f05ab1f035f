package payment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"lms/apperror"
)

const ProviderGeneric = "generic"

// Callback is a gateway result normalized to one shape. ResultCode 0 means
// the charge succeeded; anything else is a failure.
type Callback struct {
	Provider         string
	GatewayReference string
	ResultCode       *int
	ResultDesc       string
	Metadata         map[string]any
	// Amount is what the payer was charged, when the provider reports it.
	// A success for a different amount than the payment settles as failed.
	Amount *int64
	// Raw is the payload as received, kept in the gateway event log.
	Raw []byte
}

func (c Callback) Validate() error {
	if strings.TrimSpace(c.GatewayReference) == "" {
		return apperror.InvalidRequest("Gateway reference is required!")
	}
	if c.ResultCode == nil {
		return apperror.InvalidRequest("Result code is required!")
	}
	return nil
}

func (c Callback) Succeeded() bool {
	return c.ResultCode != nil && *c.ResultCode == 0
}

func (c Callback) provider() string {
	if c.Provider == "" {
		return ProviderGeneric
	}
	return c.Provider
}

// parseAmount reads a provider amount such as 2500, 1.00 or "2500.00" as
// whole currency units.
func parseAmount(v any) (*int64, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		s = t.String()
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil, apperror.InvalidRequest("Invalid payment amount!")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, apperror.InvalidRequest("Invalid payment amount!")
	}
	n := int64(math.Round(f))
	return &n, nil
}
