package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

// observeGlobal swaps the zap global for an in-memory core.
func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestWithOrderCarriesRequestCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithActor(ctx, "COURIER", "77")

	WithOrder(ctx, zap.New(core), "9001", "42").Info("order transitioned")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, map[string]interface{}{
		"request_id":  "req-9",
		"actor_type":  "COURIER",
		"actor_id":    "77",
		"merchant_id": "42",
		"order_id":    "9001",
	}, logs.All()[0].ContextMap())
}

func TestWithContextSkipsUnknownFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithContext(context.Background(), zap.New(core)).Info("sweep")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}

func TestRequestLogUsesGuardCorrelation(t *testing.T) {
	logs := observeGlobal(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "quota_exhausted", "" },
	}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/orders/:id/dispatch", func(c *gin.Context) {
		ctx := obscontext.WithActor(c.Request.Context(), "MERCHANT", "42")
		ctx = obscontext.WithOrder(ctx, c.Param("id"), "42")
		c.Request = c.Request.WithContext(ctx)
		_ = c.Error(errors.New("quota exhausted"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders/9001/dispatch", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "req-1", resp.Header().Get(HeaderRequestID))
	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "MERCHANT", fields["actor_type"])
	assert.Equal(t, "42", fields["merchant_id"])
	assert.Equal(t, "9001", fields["order_id"])
	assert.Equal(t, "/api/orders/:id/dispatch", fields["route"])
	assert.Equal(t, "quota_exhausted", fields["error_type"])

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}

func TestDescribeStatement(t *testing.T) {
	cases := []struct {
		sql  string
		want statement
	}{
		{`SELECT * FROM "orders" WHERE id = $1 LIMIT 1 FOR UPDATE`, statement{verb: "SELECT", table: "orders", locking: true}},
		{"SELECT `id` FROM `orders` WHERE assigned_courier_id = ? FOR UPDATE", statement{verb: "SELECT", table: "orders", locking: true}},
		{`INSERT INTO "quota_entries" ("id") VALUES ($1) ON CONFLICT DO NOTHING`, statement{verb: "INSERT", table: "quota_entries"}},
		{`UPDATE "quota_subscriptions" SET "status"=$1`, statement{verb: "UPDATE", table: "quota_subscriptions"}},
		{`DELETE FROM outbox_events WHERE id = $1`, statement{verb: "DELETE", table: "outbox_events"}},
		{`PRAGMA foreign_keys = ON`, statement{verb: "UNKNOWN"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, describeStatement(tc.sql), tc.sql)
	}
}

func TestSlowLockedQueryLoggedWithOrder(t *testing.T) {
	logs := observeGlobal(t)
	sqlLog := NewGormLogger(GormConfig{SlowThreshold: time.Millisecond})

	ctx := obscontext.WithOrder(context.Background(), "9001", "42")
	sqlLog.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) {
		return `SELECT * FROM "couriers" WHERE id = $1 FOR UPDATE`, 1
	}, nil)
	// fast statements stay quiet at the default level
	sqlLog.Trace(ctx, time.Now(), func() (string, int64) { return `SELECT 1`, 1 }, nil)
	// missing rows are not failures
	sqlLog.Trace(ctx, time.Now(), func() (string, int64) { return `SELECT 1`, 0 }, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "sql slow", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "couriers", fields["table"])
	assert.Equal(t, true, fields["row_lock"])
	assert.Equal(t, "9001", fields["order_id"])
	assert.Equal(t, "42", fields["merchant_id"])
}

func TestParamsRedactedUnlessEnabled(t *testing.T) {
	_, params := NewGormLogger(GormConfig{}).ParamsFilter(context.Background(), "SELECT ?", "Jl. Mawar 3")
	assert.Nil(t, params)

	_, params = NewGormLogger(GormConfig{LogParams: true}).ParamsFilter(context.Background(), "SELECT ?", "Jl. Mawar 3")
	assert.Equal(t, []interface{}{"Jl. Mawar 3"}, params)
}
