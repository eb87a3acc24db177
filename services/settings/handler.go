package settings

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
	r.API.GET("/settings", h.Get)
	r.Admin.PUT("/settings", h.Update)
}

func (h *Handler) Get(c *gin.Context) {
	ps, err := h.svc.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	ps, err := h.svc.Update(c.Request.Context(), auth.ActorFromGin(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ps)
}
