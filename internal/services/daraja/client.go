package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/legionbilling/internal/metrics"
)

const (
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	transactionType    = "CustomerPayBillOnline"
	defaultAccountRef  = "Legion Connections"
	defaultDescription = "WiFi Service Payment"
	timestampLayout    = "20060102150405"
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

// ErrRejected is returned when the gateway refuses a push request.
var ErrRejected = errors.New("daraja: push request rejected")

// Config configures a Client.
type Config struct {
	BaseURL          string
	Shortcode        string
	Passkey          string
	CallbackURL      string
	AccountReference string
	// Simulate masks transport and gateway errors behind simulated success.
	// It must be false in production.
	Simulate bool
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daraja: status %d: %s %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("daraja: status %d", e.StatusCode)
}

// PushRequest describes an STK push to a subscriber's phone.
type PushRequest struct {
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// PushResponse is the gateway's synchronous answer to a push request.
type PushResponse struct {
	MerchantRequestID   string `json:"merchantRequestID"`
	CheckoutRequestID   string `json:"checkoutRequestID"`
	ResponseCode        string `json:"responseCode"`
	ResponseDescription string `json:"responseDescription"`
	CustomerMessage     string `json:"customerMessage"`
	IsSimulated         bool   `json:"isSimulated"`
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
	MerchantRequestID   string     `json:"MerchantRequestID"`
	CheckoutRequestID   string     `json:"CheckoutRequestID"`
	ResponseCode        flexString `json:"ResponseCode"`
	ResponseDescription string     `json:"ResponseDescription"`
	CustomerMessage     string     `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode       flexString `json:"ResponseCode"`
	MerchantRequestID  string     `json:"MerchantRequestID"`
	CheckoutRequestID  string     `json:"CheckoutRequestID"`
	ResultCode         flexString `json:"ResultCode"`
	ResultDesc         string     `json:"ResultDesc"`
	Amount             flexString `json:"Amount"`
	MpesaReceiptNumber string     `json:"MpesaReceiptNumber"`
	PhoneNumber        flexString `json:"PhoneNumber"`
}

// Client talks to the Daraja STK push API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenProvider
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewClient builds a Client. The token provider is owned by the caller.
func NewClient(cfg Config, tokens TokenProvider, httpClient *http.Client, log *zap.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     tokens,
		breaker:    newBreaker("daraja", log),
		log:        log.With(zap.String("component", "daraja")),
		metrics:    m,
		now:        time.Now,
	}
}

func newBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500 || apiErr.Code == queryErrorStillProcessing
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Timestamp formats t the way Daraja expects: YYYYMMDDHHMMSS in EAT.
func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// Password signs a request: base64(shortcode + passkey + timestamp). The
// same timestamp must travel with the request.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// InitiateSTKPush asks the gateway to prompt the subscriber for payment.
func (c *Client) InitiateSTKPush(ctx context.Context, req PushRequest) (*PushResponse, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		if c.cfg.Simulate && errors.Is(err, ErrCredentialsMissing) {
			return c.simulatePush(req), nil
		}
		return nil, err
	}

	accountRef := firstNonEmpty(req.AccountReference, c.cfg.AccountReference, defaultAccountRef)
	desc := firstNonEmpty(req.Description, defaultDescription)

	ts := Timestamp(c.now())
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          Password(c.cfg.Shortcode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.Phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  truncate(accountRef, 12),
		TransactionDesc:   truncate(desc, 13),
	}

	var resp stkPushResponse
	if err := c.call(ctx, "stk_push", token, pushPath, payload, &resp); err != nil {
		if c.cfg.Simulate && !errors.Is(err, ErrTokenUnavailable) {
			c.log.Warn("stk push failed, returning simulated response", zap.Error(err))
			return c.simulatePush(req), nil
		}
		return nil, fmt.Errorf("initiate stk push: %w", err)
	}

	if code := resp.ResponseCode.String(); code != ResultCodeSuccess {
		return nil, fmt.Errorf("%w: %s %s", ErrRejected, code, resp.ResponseDescription)
	}

	return &PushResponse{
		MerchantRequestID:   resp.MerchantRequestID,
		CheckoutRequestID:   resp.CheckoutRequestID,
		ResponseCode:        resp.ResponseCode.String(),
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
	}, nil
}

// QuerySTKStatus asks the gateway for the outcome of a push request.
func (c *Client) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*Result, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		if c.cfg.Simulate && errors.Is(err, ErrCredentialsMissing) {
			return c.simulateQuery(checkoutRequestID), nil
		}
		return nil, err
	}

	ts := Timestamp(c.now())
	payload := stkQueryRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          Password(c.cfg.Shortcode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp stkQueryResponse
	if err := c.call(ctx, "stk_query", token, queryPath, payload, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == queryErrorStillProcessing {
			return &Result{
				CheckoutRequestID: checkoutRequestID,
				Outcome:           OutcomePending,
				ResultCode:        ResultCodeStillProcessing,
				ResultDesc:        firstNonEmpty(apiErr.Message, StatusDescription(ResultCodeStillProcessing)),
			}, nil
		}
		if c.cfg.Simulate && !errors.Is(err, ErrTokenUnavailable) {
			c.log.Warn("stk query failed, returning simulated response", zap.Error(err))
			return c.simulateQuery(checkoutRequestID), nil
		}
		return nil, fmt.Errorf("query stk push status: %w", err)
	}

	code := resp.ResultCode.String()
	result := &Result{
		CheckoutRequestID: firstNonEmpty(resp.CheckoutRequestID, checkoutRequestID),
		MerchantRequestID: resp.MerchantRequestID,
		Outcome:           ClassifyQuery(code),
		ResultCode:        code,
		ResultDesc:        firstNonEmpty(resp.ResultDesc, StatusDescription(code)),
		ReceiptNumber:     resp.MpesaReceiptNumber,
		PhoneNumber:       resp.PhoneNumber.String(),
	}
	if amount, err := decimal.NewFromString(resp.Amount.String()); err == nil {
		result.Amount = amount
	}
	if result.Outcome == OutcomeFailed {
		result.FailureReason = FailureReason(code)
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, operation string, token Token, path string, payload, out any) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, token, path, payload, out)
	})

	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.ObserveGateway(operation, result, time.Since(start))
	return err
}

// post sends one JSON request, refreshing the token and retrying once when
// the gateway answers 401.
func (c *Client) post(ctx context.Context, token Token, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	status, respBody, err := c.send(ctx, token, path, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return err
		}
		status, respBody, err = c.send(ctx, token, path, body)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status}
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, token Token, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
