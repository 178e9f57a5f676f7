package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TelegramService sends admin notifications to a Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBaseURL  string
	httpClient  *http.Client
	log         *zap.Logger
}

// NewTelegramService creates a new TelegramService. Without a bot token or
// chat id every send is a no-op.
func NewTelegramService(botToken, adminChatID string, log *zap.Logger) *TelegramService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBaseURL:  "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log.With(zap.String("component", "telegram")),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("bot token not configured, skipping message")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBaseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.log.Warn("failed to send message", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn("unexpected status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// PaymentNotification describes a settled payment.
type PaymentNotification struct {
	PaymentID     string
	CustomerName  string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        string
	Receipt       string
	FailureReason string
}

// FormatAmount formats an amount with thousand separators and currency.
func FormatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "KES"
	}
	str := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(str, ".")
	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var result strings.Builder
	if negative {
		result.WriteString("-")
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return currency + " " + result.String() + "." + frac
}

// NotifyPaymentOutcome tells the admin chat that a payment completed or failed.
func (s *TelegramService) NotifyPaymentOutcome(n PaymentNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	title := "✅ PAYMENT RECEIVED"
	detail := fmt.Sprintf("<b>Receipt:</b> %s", orDash(n.Receipt))
	if n.Status != "completed" {
		title = "❌ PAYMENT FAILED"
		detail = fmt.Sprintf("<b>Reason:</b> %s", orDash(n.FailureReason))
	}

	message := fmt.Sprintf(`<b>%s</b>
<b>Customer:</b> %s
<b>Amount:</b> %s
<b>Method:</b> %s
%s
<b>Payment:</b> <code>%s</code>`,
		title,
		orDash(n.CustomerName),
		FormatAmount(n.Amount, "KES"),
		n.PaymentMethod,
		detail,
		n.PaymentID,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
