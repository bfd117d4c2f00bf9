package reconstructor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/resilience"
)

func TestHTTPService_Reconstruct(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reconstruct", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Kickoff moved", body["rawText"])
		assert.Equal(t, "patch", body["mode"])
		existing := body["existing"].([]any)
		assert.Len(t, existing, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okReply))
	}))
	defer ts.Close()

	svc := NewHTTPService(HTTPOptions{BaseURL: ts.URL + "/", APIKey: "secret", RatePerSec: 100, Burst: 10})
	resp, err := svc.Reconstruct(context.Background(), Request{
		RawText:  "Kickoff moved",
		Mode:     model.ModePatch,
		Existing: []ExistingRef{{ID: "i1", Title: "Kickoff"}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Proposals, 2)
}

func TestHTTPService_TransientStatus(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusRequestTimeout} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("try later"))
		}))

		svc := NewHTTPService(HTTPOptions{BaseURL: ts.URL, RatePerSec: 100, Burst: 10})
		_, err := svc.Reconstruct(context.Background(), Request{RawText: "x"})
		require.Error(t, err)

		var te *resilience.TransientError
		require.True(t, errors.As(err, &te), code)
		assert.Equal(t, code, te.StatusCode)
		assert.Contains(t, err.Error(), "try later")
		ts.Close()
	}
}

func TestHTTPService_PermanentStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	svc := NewHTTPService(HTTPOptions{BaseURL: ts.URL, RatePerSec: 100, Burst: 10})
	_, err := svc.Reconstruct(context.Background(), Request{RawText: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "http status 422")
}

func TestHTTPService_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer ts.Close()

	svc := NewHTTPService(HTTPOptions{BaseURL: ts.URL, RatePerSec: 100, Burst: 10})
	_, err := svc.Reconstruct(context.Background(), Request{RawText: "x"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHTTPService_ContextCancelled(t *testing.T) {
	svc := NewHTTPService(HTTPOptions{BaseURL: "http://127.0.0.1:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Reconstruct(ctx, Request{RawText: "x"})
	require.Error(t, err)
}
