package service

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Shutdown can race a failed startup: the servers are assigned inside the
// goroutines Start spawns, so Shutdown must tolerate never-started servers.
func TestShutdownBeforeStart(t *testing.T) {
	svc := New(zap.NewNop().Sugar())
	assert.NotPanics(t, svc.Shutdown)

	require.NoError(t, (&MetricsServer{}).Shutdown())
	require.NoError(t, (&HealthzServer{}).Shutdown())
}

func TestHealthzHandle(t *testing.T) {
	h := &HealthzServer{log: zap.NewNop().Sugar()}
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
