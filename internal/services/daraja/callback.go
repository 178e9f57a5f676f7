package daraja

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedCallback is returned when a callback body lacks the fields
// needed to locate a payment.
var ErrMalformedCallback = errors.New("daraja: malformed callback")

// Result is a normalized payment outcome, from either a status query or a
// callback.
type Result struct {
	CheckoutRequestID string
	MerchantRequestID string
	Outcome           Outcome
	ResultCode        string
	ResultDesc        string
	FailureReason     string
	Amount            decimal.Decimal
	ReceiptNumber     string
	PhoneNumber       string
	TransactionDate   string
	IsSimulated       bool
}

type callbackEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string     `json:"MerchantRequestID"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResultCode        flexString `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string     `json:"Name"`
	Value flexString `json:"Value"`
}

// ParseCallback decodes an STK push callback body into a Result.
func ParseCallback(body []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if env.Body == nil || env.Body.StkCallback == nil {
		return nil, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}
	cb := env.Body.StkCallback
	if strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}

	code := cb.ResultCode.String()
	if code == "" {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}

	result := &Result{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		Outcome:           ClassifyCallback(code),
		ResultCode:        code,
		ResultDesc:        firstNonEmpty(cb.ResultDesc, StatusDescription(code)),
	}
	if result.Outcome == OutcomeFailed {
		result.FailureReason = FailureReason(code)
	}

	if result.Outcome == OutcomeCompleted && cb.CallbackMetadata == nil {
		return nil, fmt.Errorf("%w: success without CallbackMetadata", ErrMalformedCallback)
	}
	if cb.CallbackMetadata != nil {
		for _, item := range cb.CallbackMetadata.Item {
			value := item.Value.String()
			switch item.Name {
			case "Amount":
				if amount, err := decimal.NewFromString(value); err == nil {
					result.Amount = amount
				}
			case "MpesaReceiptNumber":
				result.ReceiptNumber = value
			case "PhoneNumber":
				result.PhoneNumber = value
			case "TransactionDate":
				result.TransactionDate = value
			}
		}
	}

	if result.Outcome == OutcomeCompleted && result.ReceiptNumber == "" {
		return nil, fmt.Errorf("%w: success without MpesaReceiptNumber", ErrMalformedCallback)
	}

	return result, nil
}

// flexString accepts a JSON string or number. Daraja sends codes and phone
// numbers as either depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}
