package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lms/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMpesaPhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":     "254712345678",
		"712345678":      "254712345678",
		"+254712345678":  "254712345678",
		"254 712 345678": "254712345678",
		"0112-345-678":   "254112345678",
	}
	for in, want := range cases {
		got, err := NormalizeMpesaPhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "12345", "255712345678", "07123x5678"} {
		_, err := NormalizeMpesaPhone(bad)
		assert.True(t, errors.Is(err, apperror.ErrInvalidRequest), bad)
	}
}

func TestMpesaGatewayCharge(t *testing.T) {
	var oauthCalls, pushCalls atomic.Int32
	var (
		mu         sync.Mutex
		pushed     stkPushRequest
		authHeader string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth/v1/generate":
			oauthCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "key" || pass != "secret" || r.URL.Query().Get("grant_type") != "client_credentials" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3599"}`))
		case "/mpesa/stkpush/v1/processrequest":
			pushCalls.Add(1)
			mu.Lock()
			authHeader = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&pushed)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewMpesaGateway(MpesaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://api.example.com/payments/callback/mpesa",
		CallbackToken:  "cb-token",
	})
	g.now = func() time.Time { return time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC) }

	charge, err := g.Charge(context.Background(), ChargeRequest{PaymentID: 1, CourseID: 42, Amount: 2500, Phone: "0712345678", Description: "Data engineering"})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", charge.Reference)

	mu.Lock()
	assert.Equal(t, "Bearer tok-1", authHeader)
	assert.Equal(t, "254712345678", pushed.PhoneNumber)
	assert.Equal(t, "254712345678", pushed.PartyA)
	assert.Equal(t, "174379", pushed.PartyB)
	assert.Equal(t, int64(2500), pushed.Amount)
	assert.Equal(t, "20260304102030", pushed.Timestamp)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("174379passkey20260304102030")), pushed.Password)
	assert.Equal(t, "COURSE-42", pushed.AccountReference)
	assert.Equal(t, "CustomerPayBillOnline", pushed.TransactionType)
	assert.Equal(t, "https://api.example.com/payments/callback/mpesa?token=cb-token", pushed.CallBackURL)
	mu.Unlock()

	_, err = g.Charge(context.Background(), ChargeRequest{PaymentID: 2, CourseID: 42, Amount: 2500, Phone: "0712345678"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), oauthCalls.Load(), "token is cached")
	assert.Equal(t, int32(2), pushCalls.Load())
}

func TestMpesaGatewayChargeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/oauth/v1/generate" {
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`))
	}))
	defer srv.Close()

	g := NewMpesaGateway(MpesaConfig{BaseURL: srv.URL, ShortCode: "174379"})
	_, err := g.Charge(context.Background(), ChargeRequest{Amount: 1, Phone: "0712345678"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Amount")

	_, err = g.Charge(context.Background(), ChargeRequest{Amount: 1, Phone: "bad"})
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))
}

func TestParseMpesaCallback(t *testing.T) {
	raw := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":1.00},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"TransactionDate","Value":20191219102115},{"Name":"PhoneNumber","Value":254708374149}]}}}}`)

	cb, err := ParseMpesaCallback(raw)
	require.NoError(t, err)
	assert.Equal(t, ProviderMpesa, cb.Provider)
	assert.Equal(t, "ws_CO_191220191020363925", cb.GatewayReference)
	require.NotNil(t, cb.ResultCode)
	assert.True(t, cb.Succeeded())
	assert.Equal(t, "NLJ7RT61SV", cb.Metadata["MpesaReceiptNumber"])
	assert.Equal(t, json.Number("254708374149"), cb.Metadata["PhoneNumber"])
	assert.Equal(t, "29115-34620561-1", cb.Metadata["MerchantRequestID"])
	require.NotNil(t, cb.Amount)
	assert.Equal(t, int64(1), *cb.Amount)

	_, err = ParseMpesaCallback([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":"ws_CO_3","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"}]}}}}`))
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))
	_, err = ParseMpesaCallback([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":"ws_CO_4","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"Amount","Value":"lots"}]}}}}`))
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))

	failed, err := ParseMpesaCallback([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`))
	require.NoError(t, err)
	assert.False(t, failed.Succeeded())
	assert.Equal(t, 1032, *failed.ResultCode)
	assert.Nil(t, failed.Metadata)

	_, err = ParseMpesaCallback([]byte(`{"Body":{}}`))
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))
	_, err = ParseMpesaCallback([]byte(`not json`))
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))
}

func midtransPayload(t *testing.T, serverKey, status, fraud, statusCode string) []byte {
	t.Helper()
	n := midtransNotification{
		TransactionStatus: status,
		TransactionID:     "tx-1",
		StatusCode:        statusCode,
		OrderID:           "LMS-7-abcd1234",
		GrossAmount:       "2500.00",
		PaymentType:       "bank_transfer",
		FraudStatus:       fraud,
	}
	n.SignatureKey = midtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	return raw
}

func TestParseMidtransNotification(t *testing.T) {
	const key = "SB-Mid-server-test"

	cases := []struct {
		status, fraud, statusCode string
		final                     bool
		success                   bool
	}{
		{"settlement", "", "200", true, true},
		{"capture", "accept", "200", true, true},
		{"capture", "challenge", "201", false, false},
		{"capture", "deny", "202", true, false},
		{"pending", "", "201", false, false},
		{"deny", "", "202", true, false},
		{"expire", "", "407", true, false},
		{"cancel", "", "200", true, false},
		{"refund", "", "200", false, false},
	}
	for _, tc := range cases {
		cb, final, err := ParseMidtransNotification(midtransPayload(t, key, tc.status, tc.fraud, tc.statusCode), key)
		require.NoError(t, err, tc.status)
		assert.Equal(t, tc.final, final, tc.status+"/"+tc.fraud)
		assert.Equal(t, "LMS-7-abcd1234", cb.GatewayReference)
		require.NotNil(t, cb.Amount)
		assert.Equal(t, int64(2500), *cb.Amount)
		if final {
			require.NotNil(t, cb.ResultCode)
			assert.Equal(t, tc.success, cb.Succeeded(), tc.status+"/"+tc.fraud)
		}
	}

	_, _, err := ParseMidtransNotification(midtransPayload(t, "other-key", "settlement", "", "200"), key)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, _, err = ParseMidtransNotification([]byte(`{}`), key)
	assert.True(t, errors.Is(err, apperror.ErrInvalidRequest))
}
