package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "KES 1,234,567.50", FormatAmount(decimal.RequireFromString("1234567.5"), ""))
	assert.Equal(t, "KES 50.00", FormatAmount(decimal.NewFromInt(50), "KES"))
	assert.Equal(t, "USD -1,000.00", FormatAmount(decimal.NewFromInt(-1000), "USD"))
}

func TestNotifyPaymentOutcome(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "42", zap.NewNop())
	svc.apiBaseURL = srv.URL

	require.NoError(t, svc.NotifyPaymentOutcome(PaymentNotification{
		PaymentID:     "p-1",
		CustomerName:  "Jane Wanjiku",
		Amount:        decimal.NewFromInt(1500),
		PaymentMethod: "mpesa",
		Status:        "failed",
		FailureReason: "cancelled",
	}))
	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "PAYMENT FAILED")
	assert.Contains(t, got.Text, "KES 1,500.00")
	assert.Contains(t, got.Text, "cancelled")
}

func TestNotifyWithoutChatIsNoop(t *testing.T) {
	svc := NewTelegramService("", "", nil)
	assert.NoError(t, svc.NotifyPaymentOutcome(PaymentNotification{Status: "completed"}))
}
