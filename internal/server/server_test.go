package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/clinic-links/internal/backend"
	"github.com/sakif/clinic-links/internal/config"
)

func testConfig(t *testing.T, name string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:        8080,
		Backend:     name,
		DataDir:     t.TempDir(),
		StorePrefix: "440_",
		DatabaseURL: ":memory:",
		JWTSecret:   "server-test-secret-0123456789",
		SessionTTL:  time.Hour,
		TemplateDir: "../../web/templates",
		StaticDir:   "../../web/static",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, name string) *Server {
	t.Helper()
	s, err := New(testConfig(t, name), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if s.closer != nil {
			s.closer.Close()
		}
	})
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_Backends(t *testing.T) {
	for _, name := range []string{backend.NameLocal, backend.NameHybrid} {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, name)
			assert.Equal(t, name, s.backend.Name())

			rec := get(t, s, "/api/content")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `"connectionError":false`)

			rec = get(t, s, "/api/session")
			assert.Contains(t, rec.Body.String(), `"state":"unconfigured"`)
		})
	}
}

func TestNew_HostedNeedsNoNetworkToStart(t *testing.T) {
	cfg := testConfig(t, backend.NameHosted)
	cfg.IdentityURL = "http://127.0.0.1:1"
	cfg.IdentityClientID = "clinic"

	s, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer s.closer.Close()

	assert.Equal(t, backend.NameHosted, s.backend.Name())
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(testConfig(t, "ftp"), testLogger())
	assert.Error(t, err)
}

func TestNew_BadTemplateDir(t *testing.T) {
	cfg := testConfig(t, backend.NameLocal)
	cfg.TemplateDir = t.TempDir()

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, backend.NameLocal)

	rec := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))

	rec = get(t, s, "/static/css/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/footer", strings.NewReader(`{"text":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_DatabaseDownAtStartup(t *testing.T) {
	for _, name := range []string{backend.NameHybrid, backend.NameHosted} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, name)
			cfg.DatabaseURL = "http://127.0.0.1:1"
			cfg.IdentityURL = "http://127.0.0.1:1"
			cfg.IdentityClientID = "clinic"

			s, err := New(cfg, testLogger())
			require.NoError(t, err, "an unreachable database must not stop the server")
			defer s.closer.Close()

			rec := get(t, s, "/api/content")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `"connectionError":true`)
			assert.Contains(t, rec.Body.String(), "Dr. Giovanni Fuentes")

			rec = get(t, s, "/")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "banner-warning")

			rec = get(t, s, "/api/session")
			assert.Contains(t, rec.Body.String(), `"state":"logged_out"`)
		})
	}
}
