package daraja

import "strconv"

// Outcome is the internal payment-status vocabulary both the query and the
// callback paths normalize to.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

const (
	ResultCodeSuccess           = "0"
	ResultCodeInsufficientFunds = "1"
	ResultCodeCancelledByUser   = "1032"
	ResultCodeSubscriberTimeout = "1037"
	ResultCodeStillProcessing   = "4999"

	// errorCode of the HTTP 500 the query endpoint returns while the
	// subscriber has not answered the prompt yet.
	queryErrorStillProcessing = "500.001.1001"

	firstGenericFailureCode    = 1038
	lastGenericFailureCode     = 1100
	lastTransactionFailureCode = 100
)

// Failure reasons stored on failed payments.
const (
	FailureReasonRejected     = "rejected"
	FailureReasonCancelled    = "cancelled"
	FailureReasonInsufficient = "insufficient_balance"
	FailureReasonUnreachable  = "unreachable"
	FailureReasonDeclined     = "declined"
	FailureReasonTimeout      = "timeout"
)

var statusDescriptions = map[string]string{
	"0":    "Success",
	"1":    "Insufficient Balance",
	"2":    "Less Than Minimum Transaction Value",
	"3":    "More Than Maximum Transaction Value",
	"4":    "Would Have Exceeded Daily Transfer Limit",
	"5":    "Would Have Exceeded Minimum Balance",
	"6":    "Unresolved Primary Party",
	"7":    "Unresolved Receiver Party",
	"8":    "Would Have Exceeded Maximum Balance",
	"11":   "Debit Account Invalid",
	"12":   "Credit Account Invalid",
	"13":   "Unresolved Debit Account",
	"14":   "Unresolved Credit Account",
	"15":   "Duplicate Detected",
	"16":   "Internal Failure",
	"17":   "Unresolved Initiator",
	"18":   "Blocked for Lack of KYC Compliance",
	"19":   "Transaction Not Permitted to Receiver",
	"20":   "Arrangement Permits This Channel",
	"21":   "Transaction Suspended by Pending Dispute",
	"22":   "Transaction Cancelled",
	"23":   "Reverse Operation Failed",
	"24":   "Transaction Reversed",
	"25":   "Refund Operation Failed",
	"26":   "Refund Reversed",
	"27":   "Reversal Operation Failed",
	"28":   "Reversal Reversed",
	"29":   "Refund Reversal Failed",
	"1032": "Request cancelled by user",
	"1037": "Timeout",
	"4999": "Transaction still under processing",
}

// StatusDescription returns a human-readable text for a result code.
func StatusDescription(code string) string {
	if desc, ok := statusDescriptions[code]; ok {
		return desc
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return "Unknown Status"
	}
	switch {
	case n > 29 && n <= lastTransactionFailureCode && n%2 == 0:
		return "Refund Reversal Reversed"
	case n > 29 && n <= lastTransactionFailureCode:
		return "Refund Reversal Operation Failed"
	case n >= firstGenericFailureCode && n <= lastGenericFailureCode:
		return "Transaction failed"
	}
	return "Unknown Status"
}

// isKnownFailure reports whether a non-zero code is a definitive failure.
// Codes outside this set are treated as still in flight on the query path.
func isKnownFailure(code string) bool {
	n, err := strconv.Atoi(code)
	if err != nil {
		return false
	}
	switch {
	case n >= 1 && n <= lastTransactionFailureCode:
		return true
	case n == 1032 || n == 1037:
		return true
	case n >= firstGenericFailureCode && n <= lastGenericFailureCode:
		return true
	}
	return false
}

// ClassifyQuery maps a status-query result code to an outcome.
func ClassifyQuery(code string) Outcome {
	switch {
	case code == ResultCodeSuccess:
		return OutcomeCompleted
	case isKnownFailure(code):
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// ClassifyCallback maps a callback result code to an outcome. The gateway
// only calls back once a request has finished, so every non-zero code fails.
func ClassifyCallback(code string) Outcome {
	if code == ResultCodeSuccess {
		return OutcomeCompleted
	}
	return OutcomeFailed
}

// FailureReason condenses a failure code into a short machine reason.
func FailureReason(code string) string {
	switch code {
	case ResultCodeCancelledByUser:
		return FailureReasonCancelled
	case ResultCodeInsufficientFunds:
		return FailureReasonInsufficient
	case ResultCodeSubscriberTimeout:
		return FailureReasonUnreachable
	}
	return FailureReasonDeclined
}
