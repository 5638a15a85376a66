package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":            zerolog.ErrorLevel,
		"dev":         zerolog.DebugLevel,
		"development": zerolog.DebugLevel,
		"DEBUG":       zerolog.DebugLevel,
		"info":        zerolog.InfoLevel,
		"warning":     zerolog.WarnLevel,
		"prod":        zerolog.ErrorLevel,
		"bogus":       zerolog.ErrorLevel,
		"off":         zerolog.Disabled,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Service: "huddle"}, &buf)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), `"service":"huddle"`)
	assert.Contains(t, buf.String(), "shown")
}

func TestInitFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	path := filepath.Join(t.TempDir(), "huddle.log")
	closer, err := Init(Config{Level: "debug", File: path})
	require.NoError(t, err)

	log.Debug().Msg("to file")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug"}, &buf)

	h := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Debug().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	assert.Contains(t, buf.String(), "inside")
	assert.Contains(t, buf.String(), `"status":418`)
}
