package daraja

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (c *Client) simulatePush(req PushRequest) *PushResponse {
	id := simulatedID()
	c.log.Info("simulated stk push",
		zap.String("phone", req.Phone),
		zap.String("checkout_request_id", "ws_CO_SIM_"+id),
	)
	return &PushResponse{
		MerchantRequestID:   "SIM-" + id,
		CheckoutRequestID:   "ws_CO_SIM_" + id,
		ResponseCode:        ResultCodeSuccess,
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
		IsSimulated:         true,
	}
}

// simulateQuery reports a completed payment so development flows can finish
// without a live gateway.
func (c *Client) simulateQuery(checkoutRequestID string) *Result {
	return &Result{
		CheckoutRequestID: checkoutRequestID,
		Outcome:           OutcomeCompleted,
		ResultCode:        ResultCodeSuccess,
		ResultDesc:        "The service request is processed successfully.",
		ReceiptNumber:     "SIM" + strings.ToUpper(simulatedID()[:7]),
		IsSimulated:       true,
	}
}

func simulatedID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
