package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"lms/apperror"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const ProviderMpesa = "mpesa"

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	// CallbackToken is added to CallbackURL as the token query parameter.
	CallbackToken string
}

// MpesaGateway charges through Daraja STK push. The OAuth token is cached
// until shortly before it expires.
type MpesaGateway struct {
	cfg    MpesaConfig
	client *resty.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewMpesaGateway(cfg MpesaConfig) *MpesaGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	cfg.CallbackURL = withToken(cfg.CallbackURL, cfg.CallbackToken)
	return &MpesaGateway{cfg: cfg, client: client, now: time.Now}
}

func withToken(callbackURL, token string) string {
	if token == "" {
		return callbackURL
	}
	u, err := url.Parse(callbackURL)
	if err != nil {
		return callbackURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (g *MpesaGateway) Name() string { return ProviderMpesa }

type mpesaToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type mpesaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (g *MpesaGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	var out mpesaToken
	resp, err := g.client.R().
		SetContext(ctx).
		SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&out).
		Get("/oauth/v1/generate")
	if err != nil {
		return "", errors.Wrap(err, "mpesa oauth request")
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", errors.Errorf("mpesa oauth failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	ttl, err := strconv.Atoi(out.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3599
	}
	g.token = out.AccessToken
	// refresh a minute early
	g.tokenExpiry = g.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return g.token, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (g *MpesaGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	phone, err := NormalizeMpesaPhone(req.Phone)
	if err != nil {
		return nil, err
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := g.now().Format("20060102150405")
	body := stkPushRequest{
		BusinessShortCode: g.cfg.ShortCode,
		Password:          base64.StdEncoding.EncodeToString([]byte(g.cfg.ShortCode + g.cfg.PassKey + timestamp)),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            phone,
		PartyB:            g.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       g.cfg.CallbackURL,
		AccountReference:  describeCourse(req.CourseID),
		TransactionDesc:   truncate(req.Description, 13),
	}

	var out stkPushResponse
	var failure mpesaError
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&out).
		SetError(&failure).
		Post("/mpesa/stkpush/v1/processrequest")
	if err != nil {
		return nil, errors.Wrap(err, "mpesa stk push request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("mpesa stk push failed: status %d: %s %s", resp.StatusCode(), failure.ErrorCode, failure.ErrorMessage)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, errors.Errorf("mpesa stk push rejected: %s %s", out.ResponseCode, out.ResponseDescription)
	}

	return &Charge{Reference: out.CheckoutRequestID, CustomerMessage: out.CustomerMessage}, nil
}

// NormalizeMpesaPhone turns 07XXXXXXXX, 7XXXXXXXX and +2547XXXXXXXX into the
// 2547XXXXXXXX form Daraja expects.
func NormalizeMpesaPhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(strings.TrimSpace(phone))
	switch {
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case len(p) == 9:
		p = "254" + p
	}
	if len(p) != 12 || !strings.HasPrefix(p, "254") {
		return "", apperror.InvalidRequest("Invalid M-Pesa phone number!")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", apperror.InvalidRequest("Invalid M-Pesa phone number!")
		}
	}
	return p, nil
}

type mpesaCallbackEnvelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseMpesaCallback normalizes a Daraja stkCallback payload.
func ParseMpesaCallback(raw []byte) (Callback, error) {
	var env mpesaCallbackEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Callback{}, apperror.InvalidRequest("Invalid M-Pesa callback payload!")
	}
	stk := env.Body.StkCallback
	if stk == nil {
		return Callback{}, apperror.InvalidRequest("Missing stkCallback in M-Pesa payload!")
	}

	cb := Callback{
		Provider:         ProviderMpesa,
		GatewayReference: stk.CheckoutRequestID,
		ResultCode:       stk.ResultCode,
		ResultDesc:       stk.ResultDesc,
		Raw:              raw,
	}
	if stk.CallbackMetadata != nil && len(stk.CallbackMetadata.Item) > 0 {
		cb.Metadata = make(map[string]any, len(stk.CallbackMetadata.Item)+1)
		for _, item := range stk.CallbackMetadata.Item {
			cb.Metadata[item.Name] = item.Value
		}
		cb.Metadata["MerchantRequestID"] = stk.MerchantRequestID

		amount, err := parseAmount(cb.Metadata["Amount"])
		if err != nil {
			return Callback{}, err
		}
		cb.Amount = amount
	}
	if cb.Succeeded() && cb.Amount == nil {
		return Callback{}, apperror.InvalidRequest("Missing Amount in M-Pesa callback metadata!")
	}
	return cb, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
