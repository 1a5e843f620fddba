package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/canopy-network/arenax/pkg/rpc"
	"github.com/canopy-network/arenax/pkg/watcher"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxMediaBytes = 10 << 20

type actionErrorResponse struct {
	Error         string       `json:"error"`
	Action        arena.Action `json:"action"`
	CorrelationID string       `json:"correlationId,omitempty"`
}

// writeActionError maps an action failure to a status code. The message is already bounded.
func writeActionError(w http.ResponseWriter, err error) {
	var aerr *watcher.ActionError
	if !errors.As(err, &aerr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, arena.ErrNoCaller):
		status = http.StatusUnauthorized
	case errors.Is(err, arena.ErrNotEligible), errors.Is(err, watcher.ErrInProgress):
		status = http.StatusConflict
	case errors.Is(err, watcher.ErrInvalidStake), errors.Is(err, watcher.ErrNoTitle),
		errors.Is(err, content.ErrEmpty), errors.Is(err, content.ErrTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, arena.ErrInvalidRecord), rpc.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, watcher.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, actionErrorResponse{Error: aerr.Message, Action: aerr.Action, CorrelationID: aerr.CorrelationID})
}

func arenaID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// HandleArenasList returns the recent arenas list kept fresh by the lobby.
func (c *Controller) HandleArenasList(w http.ResponseWriter, r *http.Request) {
	if c.App.Lobby == nil {
		writeJSON(w, http.StatusOK, map[string]any{"arenas": []arena.Summary{}})
		return
	}
	rows, updatedAt := c.App.Lobby.List()
	writeJSON(w, http.StatusOK, map[string]any{"arenas": rows, "updatedAt": updatedAt})
}

// HandleArenaView returns the merged view for the session caller (anonymous when no session).
func (c *Controller) HandleArenaView(w http.ResponseWriter, r *http.Request) {
	id, ok := arenaID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}
	caller := c.sessionCaller(r)

	view, err := c.App.Registry.View(r.Context(), id, caller)
	if err != nil {
		if rpc.IsNotFound(err) || errors.Is(err, arena.ErrInvalidRecord) {
			writeError(w, http.StatusNotFound, "arena not found")
			return
		}
		if errors.Is(err, watcher.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		c.App.Logger.Warn("arena view failed", zap.Uint64("arenaId", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleArenaActivity returns the most recent action outcomes of an arena.
func (c *Controller) HandleArenaActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := arenaID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}
	if c.App.Activity == nil {
		writeError(w, http.StatusServiceUnavailable, "activity log not available (Redis disabled)")
		return
	}
	limit, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := c.App.Activity.Recent(r.Context(), id, limit)
	if err != nil {
		c.App.Logger.Warn("activity read failed", zap.Uint64("arenaId", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "activity unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

type action func(r *http.Request, id uint64, caller string) (*watcher.Result, error)

func (c *Controller) runAction(w http.ResponseWriter, r *http.Request, fn action) {
	id, ok := arenaID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}
	res, err := fn(r, id, callerFrom(r.Context()))
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *Controller) HandleJoin(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, func(r *http.Request, id uint64, caller string) (*watcher.Result, error) {
		return c.App.Executor.Join(r.Context(), id, caller)
	})
}

type voteRequest struct {
	Candidate string `json:"candidate"`
}

func (c *Controller) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Candidate == "" {
		writeError(w, http.StatusBadRequest, "candidate is required")
		return
	}
	c.runAction(w, r, func(r *http.Request, id uint64, caller string) (*watcher.Result, error) {
		return c.App.Executor.Vote(r.Context(), id, caller, req.Candidate)
	})
}

func (c *Controller) HandleSettle(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, func(r *http.Request, id uint64, caller string) (*watcher.Result, error) {
		return c.App.Executor.Settle(r.Context(), id, caller)
	})
}

var claimKinds = map[string]arena.Action{
	"entrant": arena.ActionClaimEntrant,
	"voter":   arena.ActionClaimVoter,
	"refund":  arena.ActionClaimRefund,
}

func (c *Controller) HandleClaim(w http.ResponseWriter, r *http.Request) {
	kind, ok := claimKinds[mux.Vars(r)["kind"]]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown claim")
		return
	}
	c.runAction(w, r, func(r *http.Request, id uint64, caller string) (*watcher.Result, error) {
		return c.App.Executor.Claim(r.Context(), kind, id, caller)
	})
}

type contentRequest struct {
	Text string `json:"text"`
}

func (c *Controller) HandleSubmitContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	c.runAction(w, r, func(r *http.Request, id uint64, caller string) (*watcher.Result, error) {
		return c.App.Executor.SubmitContent(r.Context(), id, caller, req.Text)
	})
}

type createRequest struct {
	EntrantStake string `json:"entrantStake"`
	VoterStake   string `json:"voterStake"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

// HandleArenaCreate accepts JSON, or multipart form fields with an optional "media" file.
func (c *Controller) HandleArenaCreate(w http.ResponseWriter, r *http.Request) {
	var (
		body      createRequest
		media     []byte
		mediaName string
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMediaBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		body = createRequest{
			EntrantStake: r.FormValue("entrantStake"),
			VoterStake:   r.FormValue("voterStake"),
			Title:        r.FormValue("title"),
			Description:  r.FormValue("description"),
		}
		if f, hdr, err := r.FormFile("media"); err == nil {
			media, err = io.ReadAll(io.LimitReader(f, maxMediaBytes))
			_ = f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid media")
				return
			}
			mediaName = hdr.Filename
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	entrantStake, err := rpc.ParseWei(body.EntrantStake)
	if err != nil {
		writeError(w, http.StatusBadRequest, "entrantStake: "+err.Error())
		return
	}
	voterStake, err := rpc.ParseWei(body.VoterStake)
	if err != nil {
		writeError(w, http.StatusBadRequest, "voterStake: "+err.Error())
		return
	}

	res, err := c.App.Executor.Create(r.Context(), callerFrom(r.Context()), watcher.CreateRequest{
		EntrantStake: entrantStake,
		VoterStake:   voterStake,
		Title:        body.Title,
		Description:  body.Description,
		MediaName:    mediaName,
		Media:        media,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
