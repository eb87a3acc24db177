package submission

import (
	"net/http"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/db/pagination"
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

type listResponse struct {
	Data     []*Submission        `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.GET("/campaigns/:id/eligibility", h.Eligibility)
	r.API.POST("/campaigns/:id/submissions", h.Create)
	r.API.GET("/campaigns/:id/submissions", h.ListForCampaign)
	r.API.POST("/campaigns/:id/ratings", h.Rate)
	r.API.GET("/submissions", h.ListMine)
	r.API.POST("/submissions/:id/review", h.Review)
}

func (h *Handler) Eligibility(c *gin.Context) {
	out, err := h.svc.Eligibility(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.CreateSubmission(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) Review(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.ReviewSubmission(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Rate(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	out, err := h.svc.RateCampaign(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListForCampaign(c *gin.Context) {
	var p ListParams
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	rows, info, err := h.svc.ListCampaignSubmissions(c.Request.Context(), auth.ActorFromGin(c), c.Param("id"), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Data: rows, PageInfo: info})
}

func (h *Handler) ListMine(c *gin.Context) {
	var p ListParams
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	rows, info, err := h.svc.ListMySubmissions(c.Request.Context(), auth.ActorFromGin(c), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Data: rows, PageInfo: info})
}
