package controller

import (
	"crypto/rand"
	"errors"
	"net/http"
	"strings"

	"github.com/canopy-network/arenax/app/gateway/types"
	"github.com/canopy-network/arenax/pkg/utils"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
)

type Controller struct {
	App       *types.App
	JWTSecret []byte
	// Origins allowed to make credentialed cross-origin requests; "*" allows any.
	Origins []string
}

// ErrNoSessionSecret is returned when a production deployment has no SESSION_SECRET.
var ErrNoSessionSecret = errors.New("SESSION_SECRET is required in production")

// NewController returns a new controller. Outside production a missing SESSION_SECRET is
// replaced by a random one, and every origin is allowed unless CORS_ALLOWED_ORIGINS is set.
func NewController(app *types.App) (*Controller, error) {
	production := utils.Env("ENVIRONMENT", "") == "production"

	secret := []byte(utils.Env("SESSION_SECRET", ""))
	if len(secret) == 0 {
		if production {
			return nil, ErrNoSessionSecret
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		app.Logger.Warn("SESSION_SECRET not set - using a random secret, sessions will not survive restarts")
	}

	var defaultOrigins []string
	if !production {
		defaultOrigins = []string{"*"}
	}

	return &Controller{
		App:       app,
		JWTSecret: secret,
		Origins:   utils.EnvList("CORS_ALLOWED_ORIGINS", defaultOrigins),
	}, nil
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// WithCORS is a middleware that adds CORS headers for allowed origins. Requests from other
// origins get no CORS headers, so browsers keep them same-origin.
func WithCORS(next http.Handler, allowed ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		w.Header().Set("Vary", "Origin")
		if origin != "" && originAllowed(origin, allowed) {
			// Echo back the origin to allow credentials
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodPut+", "+http.MethodDelete+", "+http.MethodOptions)
		}

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Caller session (the address every action is submitted from)
	r.HandleFunc("/api/session", c.HandleSessionGet).Methods(http.MethodGet)
	r.HandleFunc("/api/session/challenge", c.HandleSessionChallenge).Methods(http.MethodPost)
	r.HandleFunc("/api/session", c.HandleSessionCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/session", c.HandleSessionDelete).Methods(http.MethodDelete)

	// Arenas
	r.HandleFunc("/api/arenas", c.HandleArenasList).Methods(http.MethodGet)
	r.Handle("/api/arenas", c.RequireSession(http.HandlerFunc(c.HandleArenaCreate))).Methods(http.MethodPost)
	r.HandleFunc("/api/arenas/{id:[0-9]+}", c.HandleArenaView).Methods(http.MethodGet)
	r.HandleFunc("/api/arenas/{id:[0-9]+}/activity", c.HandleArenaActivity).Methods(http.MethodGet)
	r.Handle("/api/arenas/{id:[0-9]+}/join", c.RequireSession(http.HandlerFunc(c.HandleJoin))).Methods(http.MethodPost)
	r.Handle("/api/arenas/{id:[0-9]+}/vote", c.RequireSession(http.HandlerFunc(c.HandleVote))).Methods(http.MethodPost)
	r.Handle("/api/arenas/{id:[0-9]+}/settle", c.RequireSession(http.HandlerFunc(c.HandleSettle))).Methods(http.MethodPost)
	r.Handle("/api/arenas/{id:[0-9]+}/claim/{kind}", c.RequireSession(http.HandlerFunc(c.HandleClaim))).Methods(http.MethodPost)
	r.Handle("/api/arenas/{id:[0-9]+}/content", c.RequireSession(http.HandlerFunc(c.HandleSubmitContent))).Methods(http.MethodPost)

	// Profiles
	r.HandleFunc("/api/profiles/{address}", c.HandleProfileGet).Methods(http.MethodGet)
	r.HandleFunc("/api/profiles/{address}/arenas", c.HandleProfileArenas).Methods(http.MethodGet)
	r.Handle("/api/profile", c.RequireSession(http.HandlerFunc(c.HandleProfilePut))).Methods(http.MethodPut)

	// WebSocket endpoint for live arena views
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
