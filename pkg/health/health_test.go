package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"taskmarket-ledger/services/testutil"
)

func TestReadinessWithDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	h := ProvideHealth(HealthParams{DB: db})

	res := h.Check(context.Background())
	require.Equal(t, StatusHealthy, res.Status)
	require.Len(t, res.Deps, 1)

	r := gin.New()
	r.GET("/readyz", h.Readiness)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessDatabaseDown(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res := ProvideHealth(HealthParams{DB: db}).Check(context.Background())
	require.Equal(t, StatusUnhealthy, res.Status)
}
