package payment

import (
	"net/http"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/httpapi"
	"taskmarket-ledger/pkg/validation"

	"github.com/gin-gonic/gin"
)

const SignatureHeader = "verif-hash"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.POST("/deposits", h.InitiateDeposit)
	r.Webhooks.POST("/payments", h.Webhook)
}

func (h *Handler) InitiateDeposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.InitiateDeposit(c.Request.Context(), auth.ActorFromGin(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Webhook answers the provider with a success body unless the delivery
// itself is unusable, so business rejections do not trigger redelivery.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		_ = c.Error(errutil.BadRequest("unreadable webhook body", err))
		return
	}

	if _, err := h.svc.HandleWebhook(c.Request.Context(), c.GetHeader(SignatureHeader), body); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
