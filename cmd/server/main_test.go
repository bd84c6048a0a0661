package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabmarket/backend/internal/config"
	"github.com/tabmarket/backend/internal/market"
)

func TestNewRouter(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	router := newRouter(cfg, market.New())

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("api is mounted", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/accounts", bytes.NewBufferString(`{"account_id":"S"}`)))
		assert.Equal(t, http.StatusCreated, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/listings", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSetupBackends_Memory(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	opts, closers := setupBackends(testContext(t), cfg)
	assert.Empty(t, opts)
	assert.Empty(t, closers)
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

// testContext returns a context cancelled when the test finishes
// (stand-in for testing.T.Context, which needs Go 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
