package ledger

import (
	"net/http"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/httpapi"
	"taskmarket-ledger/pkg/validation"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.GET("/wallet", h.GetWallet)
	r.API.GET("/transactions", h.ListTransactions)
	r.API.GET("/transactions/:id", h.GetTransaction)
	r.Internal.POST("/accounts", h.OpenAccount)
}

func (h *Handler) GetWallet(c *gin.Context) {
	actor := auth.ActorFromGin(c)
	acc, err := h.store.GetAccount(c.Request.Context(), actor.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	var req ListTransactionsParams
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	actor := auth.ActorFromGin(c)
	rows, info, err := h.store.ListTransactionsForUser(c.Request.Context(), actor.ID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}

// GetTransaction hides transactions of other users behind NotFound.
func (h *Handler) GetTransaction(c *gin.Context) {
	t, err := h.store.GetTransactionByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	actor := auth.ActorFromGin(c)
	if t.UserID != actor.ID && !actor.IsAdmin() {
		_ = c.Error(errutil.NotFound("transaction not found", nil))
		return
	}

	c.JSON(http.StatusOK, t)
}

type OpenAccountRequest struct {
	UserID string `json:"user_id" binding:"required,max=64"`
}

func (h *Handler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(validation.ToError(err))
		return
	}

	acc, err := h.store.OpenAccount(c.Request.Context(), req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}
