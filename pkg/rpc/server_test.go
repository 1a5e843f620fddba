package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestServer serves fixed JSON per path and records request bodies.
func newTestServer(t *testing.T, routes map[string]any) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_path"] = r.URL.Path
		seen = append(seen, body)

		resp, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestClient(endpoints ...string) *HTTPClient {
	return NewHTTPWithOpts(Opts{
		Endpoints:       endpoints,
		Contract:        "0xC0ffee254729296a45a3885639AC7E10F9d54979",
		Timeout:         2 * time.Second,
		RPS:             1000,
		Burst:           1000,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})
}
