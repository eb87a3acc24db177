package withdrawal

import (
	"net/http"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/httpapi"
	"taskmarket-ledger/pkg/validation"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.POST("/withdrawals", h.Request)
	r.Admin.POST("/withdrawals/:id/settle", h.Settle)
}

func (h *Handler) Request(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.RequestWithdrawal(c.Request.Context(), auth.ActorFromGin(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) Settle(c *gin.Context) {
	var body settleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.SettleWithdrawal(c.Request.Context(), SettleRequest{
		TransactionID: c.Param("id"),
		Approve:       *body.Approve,
		Note:          body.Note,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
