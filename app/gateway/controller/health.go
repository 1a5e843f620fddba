package controller

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status   string `json:"status"`
	Ledger   string `json:"ledger"`
	Redis    string `json:"redis"`
	Watchers int    `json:"watchers"`
	Overlays int    `json:"overlays"`
}

// HandleHealth reports ledger reachability and, when enabled, Redis.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Ledger: "ok", Redis: "disabled", Watchers: c.App.Registry.Size(), Overlays: c.App.Registry.Overlays()}
	if _, err := c.App.Ledger.LatestBlockTime(ctx); err != nil {
		resp.Status = "degraded"
		resp.Ledger = err.Error()
	}
	if c.App.RedisClient != nil {
		resp.Redis = "ok"
		if err := c.App.RedisClient.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Redis = err.Error()
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
