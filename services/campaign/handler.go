package campaign

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
	r.API.POST("/campaigns", h.Create)
	r.API.GET("/campaigns/:id", h.Get)
	r.API.PATCH("/campaigns/:id/activity", h.SetActivity)
	r.Admin.POST("/campaigns/:id/moderation", h.Moderate)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.CreateCampaign(c.Request.Context(), auth.ActorFromGin(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) Get(c *gin.Context) {
	out, err := h.svc.GetCampaign(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) SetActivity(c *gin.Context) {
	var req ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.SetActivity(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Moderate(c *gin.Context) {
	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.ModerateCampaign(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
