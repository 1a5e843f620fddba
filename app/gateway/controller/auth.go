package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionCookie = "arena_session"
	sessionTTL    = 24 * time.Hour
	challengeTTL  = 5 * time.Minute

	kindSession   = "session"
	kindChallenge = "challenge"
)

// tokenClaims backs both the session cookie and the sign-in challenge; Kind keeps one from
// being accepted as the other.
type tokenClaims struct {
	Kind  string `json:"typ"`
	Nonce string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

type callerKey struct{}

// callerFrom returns the session address stored by RequireSession.
func callerFrom(ctx context.Context) string {
	v, _ := ctx.Value(callerKey{}).(string)
	return v
}

func (c *Controller) parseToken(raw, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (c *Controller) signToken(claims tokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.JWTSecret)
}

// sessionCaller returns the address carried by a valid session cookie, or "".
func (c *Controller) sessionCaller(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	claims, err := c.parseToken(cookie.Value, kindSession)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// RequireSession middleware
func (c *Controller) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := c.sessionCaller(r)
		if caller == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// IssueSession issues a session cookie for an address whose ownership was proven.
func (c *Controller) IssueSession(w http.ResponseWriter, address string) error {
	now := time.Now()
	ss, err := c.signToken(tokenClaims{
		Kind: kindSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    ss,
		Path:     "/",
		HttpOnly: true,
		Secure:   os.Getenv("ENVIRONMENT") == "production",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

// challengeMessage is the text the wallet signs. It is rebuilt from the challenge claims on
// verification, so the client cannot alter it.
func challengeMessage(address, nonce string, issued time.Time) string {
	return fmt.Sprintf("Sign in to Arena\n\nAddress: %s\nNonce: %s\nIssued At: %s",
		address, nonce, issued.UTC().Format(time.RFC3339))
}

type challengeRequest struct {
	Address string `json:"address"`
}

type challengeResponse struct {
	Message   string    `json:"message"`
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleSessionChallenge returns a message for the wallet to sign and an opaque challenge
// token to send back with the signature.
func (c *Controller) HandleSessionChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	addr, err := arena.NormalizeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().Truncate(time.Second)
	nonce := uuid.NewString()
	expires := now.Add(challengeTTL)
	token, err := c.signToken(tokenClaims{
		Kind:  kindChallenge,
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to issue challenge")
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{
		Message:   challengeMessage(addr, nonce, now),
		Challenge: token,
		ExpiresAt: expires,
	})
}

type sessionRequest struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// HandleSessionCreate verifies the signed challenge and issues a session for its signer.
func (c *Controller) HandleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Challenge == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "challenge and signature are required")
		return
	}
	claims, err := c.parseToken(req.Challenge, kindChallenge)
	if err != nil || claims.IssuedAt == nil || claims.Nonce == "" {
		writeError(w, http.StatusUnauthorized, "invalid or expired challenge")
		return
	}

	msg := challengeMessage(claims.Subject, claims.Nonce, claims.IssuedAt.Time)
	signer, err := arena.RecoverSigner(msg, req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !arena.SameAddress(signer, claims.Subject) {
		writeError(w, http.StatusUnauthorized, "signature does not match address")
		return
	}

	if err := c.IssueSession(w, claims.Subject); err != nil {
		writeError(w, http.StatusInternalServerError, "unable to issue session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": claims.Subject})
}

func (c *Controller) HandleSessionGet(w http.ResponseWriter, r *http.Request) {
	caller := c.sessionCaller(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": caller})
}

func (c *Controller) HandleSessionDelete(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}
