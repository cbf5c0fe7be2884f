package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/carepoint/gatekeeper/pkg/contextkeys"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.WithField("subject", "u1").Warn("visible")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "u1", entry["subject"])

	_, err = NewLogger("loud", "json", &buf)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)

	text, err := NewLogger("debug", "text", &buf)
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, text.Formatter)
}

func TestLoggerFromContext(t *testing.T) {
	assert.Equal(t, logrus.StandardLogger(), LoggerFromContext(context.Background()))

	logger, hook := test.NewNullLogger()
	ctx := contextkeys.WithLogger(context.Background(), logger.WithField("request_id", "r1"))
	LoggerFromContext(ctx).Info("tagged")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "r1", hook.LastEntry().Data["request_id"])
}

func TestWithTraceContext(t *testing.T) {
	logger, hook := test.NewNullLogger()

	WithTraceContext(context.Background(), logger).Info("untraced")
	assert.NotContains(t, hook.LastEntry().Data, "trace_id")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	WithTraceContext(ctx, logger).Info("traced")
	assert.Equal(t, span.SpanContext().TraceID().String(), hook.LastEntry().Data["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), hook.LastEntry().Data["span_id"])
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDecision("patients.read", "allowed")
	m.RecordDecision("", "permission_denied")
	m.RecordFailedAttempt(false)
	m.RecordFailedAttempt(true)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordAuditDrop()
	m.RecordReaped(3)
	m.ObserveStage("verify", 2*time.Millisecond)
	m.RecordStageFailure("verify", "token_expired")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("patients.read", "allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("unnamed", "permission_denied")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FailedAttemptsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LockoutsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditEventsDropped))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SessionsReapedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailures.WithLabelValues("verify", "token_expired")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gatekeeper_lockouts_total 1")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("r", "allowed")
		m.RecordFailedAttempt(true)
		m.RecordCacheLookup(true)
		m.RecordAuditDrop()
		m.RecordReaped(1)
		m.ObserveStage("verify", time.Millisecond)
		m.RecordStageFailure("verify", "invalid_token")
	})
}

func setupRedisCheck(t *testing.T) (*storage.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	store, err := storage.NewRedisStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestHealthChecker_Healthy(t *testing.T) {
	store, _ := setupRedisCheck(t)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	checker := NewHealthChecker("test", time.Second).
		AddCheck("redis", true, PingCheck(store)).
		AddCheck("postgres", true, SQLCheck(db))

	status := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["postgres"].Status)
	assert.Equal(t, []string{"postgres", "redis"}, checker.Names())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_Readiness(t *testing.T) {
	store, mr := setupRedisCheck(t)

	checker := NewHealthChecker("test", time.Second).
		AddCheck("redis", true, PingCheck(store)).
		AddCheck("tracing", false, func(ctx context.Context) error { return errors.New("collector down") })

	router := mux.NewRouter()
	RegisterHealthRoutes(router, checker)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, "collector down", status.Dependencies["tracing"].Message)

	mr.SetError("LOADING")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestShutdownManager(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sm := NewShutdownManager(logger, nil, time.Second)

	var order []string
	sm.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	sm.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return errors.New("flush failed")
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: flush failed")
	assert.Equal(t, []string{"second", "first"}, order)
}
