package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	t           *testing.T
	tokenCalls  atomic.Int32
	pushCalls   atomic.Int32
	rejectFirst atomic.Bool
	lastPush    stkPushRequest
	push        http.HandlerFunc
	query       http.HandlerFunc
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	g := &fakeGateway{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		n := g.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc(pushPath, func(w http.ResponseWriter, r *http.Request) {
		g.pushCalls.Add(1)
		if g.rejectFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&g.lastPush))
		if g.push != nil {
			g.push(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})
	})
	mux.HandleFunc(queryPath, func(w http.ResponseWriter, r *http.Request) {
		g.query(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return g, srv
}

func newTestClient(srv *httptest.Server, key string, simulate bool) (*Client, *OAuthTokenProvider) {
	tokens := NewOAuthTokenProvider(srv.URL, key, "secret", srv.Client(), nil)
	client := NewClient(Config{
		BaseURL:     srv.URL + "/",
		Shortcode:   "174379",
		Passkey:     "passkey",
		CallbackURL: "https://example.com/api/payments/mpesa/callback",
		Simulate:    simulate,
	}, tokens, srv.Client(), zap.NewNop(), nil)
	return client, tokens
}

func TestPasswordAndTimestamp(t *testing.T) {
	ts := Timestamp(time.Date(2026, 1, 2, 21, 4, 5, 0, time.UTC))
	assert.Equal(t, "20260103000405", ts)

	decoded, err := base64.StdEncoding.DecodeString(Password("174379", "passkey", ts))
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20260103000405", string(decoded))
}

func TestTokenIsCachedUntilExpiry(t *testing.T) {
	g, srv := newFakeGateway(t)
	_, tokens := newTestClient(srv, "key", false)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := tokens.Get(ctx)
	require.NoError(t, err)
	second, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)
	assert.EqualValues(t, 1, g.tokenCalls.Load())

	now = now.Add(TokenTTL + time.Second)
	third, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, third.Value)
	assert.EqualValues(t, 2, g.tokenCalls.Load())
}

func TestTokenMissingCredentials(t *testing.T) {
	g, srv := newFakeGateway(t)
	_, tokens := newTestClient(srv, "", false)

	_, err := tokens.Get(context.Background())
	assert.ErrorIs(t, err, ErrTokenUnavailable)
	assert.ErrorIs(t, err, ErrCredentialsMissing)
	assert.EqualValues(t, 0, g.tokenCalls.Load())
}

func TestInitiateSTKPush(t *testing.T) {
	g, srv := newFakeGateway(t)
	client, _ := newTestClient(srv, "key", false)
	client.now = func() time.Time { return time.Date(2026, 1, 2, 7, 0, 0, 0, time.UTC) }

	resp, err := client.InitiateSTKPush(context.Background(), PushRequest{
		Phone:            "254712345678",
		Amount:           decimal.RequireFromString("49.01"),
		AccountReference: "Legion Connections Ltd",
		Description:      "Payment for Jane Wanjiku",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)
	assert.False(t, resp.IsSimulated)

	sent := g.lastPush
	assert.EqualValues(t, 50, sent.Amount)
	assert.Equal(t, "20260102100000", sent.Timestamp)
	assert.Equal(t, Password("174379", "passkey", "20260102100000"), sent.Password)
	assert.Equal(t, "CustomerPayBillOnline", sent.TransactionType)
	assert.Equal(t, "254712345678", sent.PartyA)
	assert.Equal(t, "174379", sent.PartyB)
	assert.Len(t, sent.AccountReference, 12)
	assert.Len(t, sent.TransactionDesc, 13)
}

func TestInitiateSTKPushRefreshesTokenOn401(t *testing.T) {
	g, srv := newFakeGateway(t)
	client, _ := newTestClient(srv, "key", false)
	g.rejectFirst.Store(true)

	_, err := client.InitiateSTKPush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, g.pushCalls.Load())
	assert.EqualValues(t, 2, g.tokenCalls.Load())
}

func TestInitiateSTKPushRejected(t *testing.T) {
	g, srv := newFakeGateway(t)
	client, _ := newTestClient(srv, "key", true)
	g.push = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "1", "ResponseDescription": "Rejected"})
	}

	_, err := client.InitiateSTKPush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestGatewayErrorsSimulateOnlyOutsideProduction(t *testing.T) {
	g, srv := newFakeGateway(t)
	g.push = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errorCode":"500.001.1001","errorMessage":"boom"}`))
	}
	req := PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(1)}

	dev, _ := newTestClient(srv, "key", true)
	resp, err := dev.InitiateSTKPush(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.IsSimulated)
	assert.Contains(t, resp.CheckoutRequestID, "ws_CO_SIM_")

	prod, _ := newTestClient(srv, "key", false)
	_, err = prod.InitiateSTKPush(context.Background(), req)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestMissingCredentialsSimulateOutsideProduction(t *testing.T) {
	_, srv := newFakeGateway(t)
	req := PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(1)}

	dev, _ := newTestClient(srv, "", true)
	resp, err := dev.InitiateSTKPush(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.IsSimulated)

	result, err := dev.QuerySTKStatus(context.Background(), resp.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.True(t, result.IsSimulated)
	assert.Regexp(t, `^SIM[0-9A-F]{7}$`, result.ReceiptNumber)

	prod, _ := newTestClient(srv, "", false)
	_, err = prod.InitiateSTKPush(context.Background(), req)
	assert.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestQuerySTKStatus(t *testing.T) {
	g, srv := newFakeGateway(t)
	client, _ := newTestClient(srv, "key", false)

	g.query = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"requestId":"r1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
	}
	result, err := client.QuerySTKStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, ResultCodeStillProcessing, result.ResultCode)

	g.query = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`))
	}
	result, err = client.QuerySTKStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, FailureReasonCancelled, result.FailureReason)

	g.query = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok","MpesaReceiptNumber":"R1"}`))
	}
	result, err = client.QuerySTKStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "R1", result.ReceiptNumber)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	g, srv := newFakeGateway(t)
	client, _ := newTestClient(srv, "key", false)
	g.push = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	req := PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(1)}

	for i := 0; i < 5; i++ {
		_, err := client.InitiateSTKPush(context.Background(), req)
		require.Error(t, err)
	}
	calls := g.pushCalls.Load()

	_, err := client.InitiateSTKPush(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, calls, g.pushCalls.Load())
}
