package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.flowcatalyst.tech/internal/telemetry"
)

type fakeStatusProvider struct {
	snap telemetry.Snapshot
}

func (f fakeStatusProvider) Snapshot() telemetry.Snapshot { return f.snap }

type fakeChecker struct {
	err error
}

func (f fakeChecker) CheckConnectivity() error { return f.err }

func TestHealthzAlwaysOK(t *testing.T) {
	h := NewHandlers(fakeStatusProvider{}, telemetry.NewInMemoryWarningService(), telemetry.NewHealthService(nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsDependencyFailure(t *testing.T) {
	health := telemetry.NewHealthService(map[telemetry.Dependency]telemetry.ConnectivityChecker{
		telemetry.DependencyRunDB: fakeChecker{err: assert.AnError},
	})
	h := NewHandlers(fakeStatusProvider{}, telemetry.NewInMemoryWarningService(), health)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusServesSnapshot(t *testing.T) {
	h := NewHandlers(fakeStatusProvider{snap: telemetry.Snapshot{RelayID: "relay-a", Role: "master"}}, telemetry.NewInMemoryWarningService(), telemetry.NewHealthService(nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay-a")
}

func TestAcknowledgeWarningNotFound(t *testing.T) {
	h := NewHandlers(fakeStatusProvider{}, telemetry.NewInMemoryWarningService(), telemetry.NewHealthService(nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/warnings/does-not-exist/ack", nil)
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeWarningFound(t *testing.T) {
	warnings := telemetry.NewInMemoryWarningService()
	w := warnings.AddWarning(telemetry.CategoryRole, telemetry.SeverityWarning, "peer silent", "role")
	h := NewHandlers(fakeStatusProvider{}, warnings, telemetry.NewHealthService(nil))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/warnings/"+w.ID+"/ack", nil)
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
