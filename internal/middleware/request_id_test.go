package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithRequestID(t *testing.T, incoming string) (header, seen string) {
	t.Helper()
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/alerts/webhook", nil)
	if incoming != "" {
		req.Header.Set(RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Header().Get(RequestIDHeader), seen
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent"},
		{name: "alertmanager supplied id kept", incoming: "am-7f3c2b", keep: true},
		{name: "oversized id replaced", incoming: strings.Repeat("x", maxRequestIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, seen := serveWithRequestID(t, tt.incoming)
			assert.Equal(t, header, seen, "handler context and response header disagree")
			if tt.keep {
				assert.Equal(t, tt.incoming, header)
				return
			}
			_, err := uuid.Parse(header)
			require.NoError(t, err, "expected a generated UUID, got %q", header)
		})
	}
}

func TestRequestIDMiddleware_UniquePerRequest(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id, _ := serveWithRequestID(t, "")
		_, dup := seen[id]
		require.False(t, dup, "duplicate request id %q", id)
		seen[id] = struct{}{}
	}
}

func TestGetRequestID_OutsideRequest(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}
