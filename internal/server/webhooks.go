package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"github.com/smallbiznis/receiptor/internal/trigger"
)

type runResponse struct {
	OrderID          string `json:"order_id"`
	Done             bool   `json:"done"`
	Stage            string `json:"stage,omitempty"`
	Reason           string `json:"reason,omitempty"`
	InvoiceNumber    string `json:"invoice_number,omitempty"`
	ArtifactPath     string `json:"artifact_path,omitempty"`
	NotificationSent bool   `json:"notification_sent"`
}

func toRunResponse(out receiptdomain.Outcome) runResponse {
	return runResponse{
		OrderID:          out.OrderID.String(),
		Done:             out.Done,
		Stage:            string(out.Stage),
		Reason:           string(out.Reason),
		InvoiceNumber:    out.InvoiceNumber,
		ArtifactPath:     out.ArtifactPath,
		NotificationSent: out.NotificationSent,
	}
}

// HandleOrderTransition ingests an order lifecycle event. Transitions
// other than the validation step acknowledge without processing.
func (s *Server) HandleOrderTransition(c *gin.Context) {
	var raw trigger.OrderPreTransition
	if err := c.ShouldBindJSON(&raw); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.normalizer.NormalizeOrder(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if event == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	s.process(c, *event)
}

// HandlePaymentTransition ingests a payment lifecycle event.
// Non-settling transitions and payments against orders still in
// checkout acknowledge without processing.
func (s *Server) HandlePaymentTransition(c *gin.Context) {
	var raw trigger.PaymentPostTransition
	if err := c.ShouldBindJSON(&raw); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := s.normalizer.NormalizePayment(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if event == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	s.process(c, *event)
}

func (s *Server) process(c *gin.Context, event receiptdomain.TriggerEvent) {
	outcome, err := s.orchestrator.Process(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRunResponse(outcome))
}

// HandleResume re-runs orders that hold a committed invoice number but
// no stored artifact.
func (s *Server) HandleResume(c *gin.Context) {
	var req struct {
		Limit int `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	outcomes, err := s.orchestrator.Resume(c.Request.Context(), req.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]runResponse, 0, len(outcomes))
	for _, out := range outcomes {
		resp = append(resp, toRunResponse(out))
	}
	c.JSON(http.StatusOK, gin.H{"runs": resp})
}
