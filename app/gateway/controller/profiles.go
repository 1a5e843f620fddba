package controller

import (
	"errors"
	"net/http"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (c *Controller) requireContent(w http.ResponseWriter) bool {
	if c.App.Content == nil {
		writeError(w, http.StatusServiceUnavailable, "content service not configured")
		return false
	}
	return true
}

func (c *Controller) HandleProfileGet(w http.ResponseWriter, r *http.Request) {
	if !c.requireContent(w) {
		return
	}
	addr, err := arena.NormalizeAddress(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := c.App.Content.Profile(r.Context(), addr)
	if err != nil {
		c.App.Logger.Warn("profile read failed", zap.String("address", addr), zap.Error(err))
		writeError(w, http.StatusBadGateway, "content service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *Controller) HandleProfileArenas(w http.ResponseWriter, r *http.Request) {
	if !c.requireContent(w) {
		return
	}
	addr, err := arena.NormalizeAddress(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := c.App.Content.ByUser(r.Context(), addr)
	if err != nil {
		c.App.Logger.Warn("profile arenas read failed", zap.String("address", addr), zap.Error(err))
		writeError(w, http.StatusBadGateway, "content service unavailable")
		return
	}
	if rows == nil {
		rows = []arena.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"arenas": rows})
}

type profileRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

// HandleProfilePut updates the profile of the session address.
func (c *Controller) HandleProfilePut(w http.ResponseWriter, r *http.Request) {
	if !c.requireContent(w) {
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p := arena.Profile{Address: callerFrom(r.Context()), Username: req.Username, Bio: req.Bio}
	if err := c.App.Content.PutProfile(r.Context(), p); err != nil {
		if errors.Is(err, content.ErrTooLong) || errors.Is(err, content.ErrEmpty) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c.App.Logger.Warn("profile write failed", zap.String("address", p.Address), zap.Error(err))
		writeError(w, http.StatusBadGateway, "content service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
