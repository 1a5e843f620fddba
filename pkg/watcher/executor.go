package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/canopy-network/arenax/pkg/retry"
	"github.com/canopy-network/arenax/pkg/rpc"
	"github.com/canopy-network/arenax/pkg/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	maxActionMessage = 160
	maxCreateMessage = 120
)

var (
	ErrInProgress   = errors.New("action already in progress")
	ErrInvalidStake = errors.New("stakes must be greater than zero")
	ErrNoTitle      = errors.New("challenge title is required")
	ErrNoArenaID    = errors.New("arena id not found in receipt")
)

// ActionError is returned for every failed action. Message is bounded for display.
type ActionError struct {
	Action        arena.Action
	ArenaID       uint64
	CorrelationID string
	Message       string
	Err           error
}

func (e *ActionError) Error() string { return e.Message }
func (e *ActionError) Unwrap() error { return e.Err }

// Result describes an accepted action.
type Result struct {
	Action        arena.Action `json:"action"`
	ArenaID       uint64       `json:"arenaId"`
	TxHash        string       `json:"txHash,omitempty"`
	CorrelationID string       `json:"correlationId"`
	View          *arena.View  `json:"view,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// CreateRequest is the input of Create. Media is optional.
type CreateRequest struct {
	EntrantStake *big.Int
	VoterStake   *big.Int
	Title        string
	Description  string
	MediaName    string
	Media        []byte
}

// Executor runs state-changing actions: mark in flight, submit, await durable acceptance,
// then refresh. The in-flight marker is always cleared.
type Executor struct {
	ledger   rpc.Writer
	store    content.Store
	registry *Registry
	activity ActivityLog
	retry    retry.Config
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewExecutor builds an executor. activity may be nil.
func NewExecutor(ledger rpc.Writer, store content.Store, registry *Registry, activity ActivityLog,
	cfg retry.Config, clock clockwork.Clock, logger *zap.Logger) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Executor{
		ledger:   ledger,
		store:    store,
		registry: registry,
		activity: activity,
		retry:    cfg,
		clock:    clock,
		logger:   logger,
	}
}

func (e *Executor) Join(ctx context.Context, arenaID uint64, caller string) (*Result, error) {
	return e.run(ctx, arena.ActionJoin, arenaID, caller, func(ctx context.Context, v *arena.View) (string, error) {
		return e.ledger.Join(ctx, caller, arenaID, v.Snapshot.EntrantStake)
	})
}

func (e *Executor) Vote(ctx context.Context, arenaID uint64, caller, candidate string) (*Result, error) {
	return e.run(ctx, arena.ActionVote, arenaID, caller, func(ctx context.Context, v *arena.View) (string, error) {
		if !arena.CanVoteFor(v.Eligibility, caller, candidate) {
			return "", fmt.Errorf("cannot vote for %s: %w", arena.ShortAddress(candidate), arena.ErrNotEligible)
		}
		if !isParticipant(v, candidate) {
			return "", fmt.Errorf("%s is not a participant: %w", arena.ShortAddress(candidate), arena.ErrNotEligible)
		}
		return e.ledger.Vote(ctx, caller, arenaID, candidate, v.Snapshot.VoterStake)
	})
}

func (e *Executor) Settle(ctx context.Context, arenaID uint64, caller string) (*Result, error) {
	return e.run(ctx, arena.ActionSettle, arenaID, caller, func(ctx context.Context, _ *arena.View) (string, error) {
		return e.ledger.Settle(ctx, caller, arenaID)
	})
}

func (e *Executor) ClaimEntrantReward(ctx context.Context, arenaID uint64, caller string) (*Result, error) {
	return e.run(ctx, arena.ActionClaimEntrant, arenaID, caller, func(ctx context.Context, _ *arena.View) (string, error) {
		return e.ledger.ClaimEntrantReward(ctx, caller, arenaID)
	})
}

func (e *Executor) ClaimVoterReward(ctx context.Context, arenaID uint64, caller string) (*Result, error) {
	return e.run(ctx, arena.ActionClaimVoter, arenaID, caller, func(ctx context.Context, _ *arena.View) (string, error) {
		return e.ledger.ClaimVoterReward(ctx, caller, arenaID)
	})
}

func (e *Executor) ClaimRefund(ctx context.Context, arenaID uint64, caller string) (*Result, error) {
	return e.run(ctx, arena.ActionClaimRefund, arenaID, caller, func(ctx context.Context, _ *arena.View) (string, error) {
		return e.ledger.ClaimRefund(ctx, caller, arenaID)
	})
}

// Claim dispatches one of the three claim actions.
func (e *Executor) Claim(ctx context.Context, action arena.Action, arenaID uint64, caller string) (*Result, error) {
	switch action {
	case arena.ActionClaimEntrant:
		return e.ClaimEntrantReward(ctx, arenaID, caller)
	case arena.ActionClaimVoter:
		return e.ClaimVoterReward(ctx, arenaID, caller)
	case arena.ActionClaimRefund:
		return e.ClaimRefund(ctx, arenaID, caller)
	}
	return nil, e.fail(action, arenaID, "", fmt.Errorf("unknown claim %q", action), maxActionMessage)
}

type submitFunc func(ctx context.Context, v *arena.View) (string, error)

func (e *Executor) run(ctx context.Context, action arena.Action, arenaID uint64, caller string, submit submitFunc) (*Result, error) {
	cid := uuid.NewString()
	logger := e.logger.With(zap.String("action", string(action)), zap.Uint64("arenaId", arenaID), zap.String("correlationId", cid))

	if caller == "" {
		return nil, e.fail(action, arenaID, cid, arena.ErrNoCaller, maxActionMessage)
	}

	w := e.registry.Acquire(arenaID, caller)
	defer e.registry.Release(arenaID, caller)

	view := w.View()
	if view == nil {
		if err := w.Refresh(ctx); err != nil {
			return nil, e.record(ctx, caller, "", e.fail(action, arenaID, cid, err, maxActionMessage))
		}
		if view = w.View(); view == nil {
			return nil, e.fail(action, arenaID, cid, ErrStopped, maxActionMessage)
		}
	}
	if !view.Eligibility.Allows(action) {
		err := fmt.Errorf("%s is not available: %w", action, arena.ErrNotEligible)
		return nil, e.record(ctx, caller, "", e.fail(action, arenaID, cid, err, maxActionMessage))
	}

	overlay := w.Overlay()
	if !overlay.Begin(action) {
		return nil, e.fail(action, arenaID, cid, ErrInProgress, maxActionMessage)
	}
	w.Republish(ctx)
	defer func() {
		overlay.End(action)
		w.Republish(context.WithoutCancel(ctx))
	}()

	txHash, err := submit(ctx, view)
	if err != nil {
		return nil, e.record(ctx, caller, txHash, e.fail(action, arenaID, cid, err, maxActionMessage))
	}
	logger.Info("transaction submitted", zap.String("txHash", txHash))

	if _, err := e.awaitReceipt(ctx, action, txHash); err != nil {
		return nil, e.record(ctx, caller, txHash, e.fail(action, arenaID, cid, err, maxActionMessage))
	}

	if action == arena.ActionSettle {
		overlay.MarkSettled()
	}
	if err := w.Refresh(ctx); err != nil {
		logger.Warn("refresh after action failed", zap.Error(err))
	}
	logger.Info("action accepted", zap.String("txHash", txHash))

	res := &Result{Action: action, ArenaID: arenaID, TxHash: txHash, CorrelationID: cid, View: w.View()}
	e.recordOK(ctx, caller, res)
	return res, nil
}

// SubmitContent stores the caller's entry off-chain and refreshes the content pass.
func (e *Executor) SubmitContent(ctx context.Context, arenaID uint64, caller, text string) (*Result, error) {
	action := arena.ActionSubmitContent
	cid := uuid.NewString()
	if caller == "" {
		return nil, e.fail(action, arenaID, cid, arena.ErrNoCaller, maxActionMessage)
	}
	if e.store == nil {
		return nil, e.fail(action, arenaID, cid, errors.New("content store unavailable"), maxActionMessage)
	}
	text, err := content.ValidateEntry(text)
	if err != nil {
		return nil, e.fail(action, arenaID, cid, err, maxActionMessage)
	}

	w := e.registry.Acquire(arenaID, caller)
	defer e.registry.Release(arenaID, caller)

	// Content must be current to know whether the caller already submitted.
	w.RefreshContent(ctx)
	if err := w.Refresh(ctx); err != nil {
		return nil, e.fail(action, arenaID, cid, err, maxActionMessage)
	}
	view := w.View()
	if view == nil {
		return nil, e.fail(action, arenaID, cid, ErrStopped, maxActionMessage)
	}
	if !view.Eligibility.Allows(action) {
		return nil, e.fail(action, arenaID, cid, fmt.Errorf("%s is not available: %w", action, arena.ErrNotEligible), maxActionMessage)
	}

	overlay := w.Overlay()
	if !overlay.Begin(action) {
		return nil, e.fail(action, arenaID, cid, ErrInProgress, maxActionMessage)
	}
	defer func() {
		overlay.End(action)
		w.Republish(context.WithoutCancel(ctx))
	}()

	if err := e.store.PutEntry(ctx, arenaID, caller, text); err != nil {
		return nil, e.record(ctx, caller, "", e.fail(action, arenaID, cid, err, maxActionMessage))
	}
	w.RefreshContent(ctx)

	res := &Result{Action: action, ArenaID: arenaID, CorrelationID: cid, View: w.View()}
	e.recordOK(ctx, caller, res)
	return res, nil
}

// Create opens a new arena funded with the entrant stake, waits for the ArenaCreated event and
// then stores the challenge off-chain. Content failures after creation are reported as warnings.
func (e *Executor) Create(ctx context.Context, caller string, req CreateRequest) (*Result, error) {
	action := arena.ActionCreate
	cid := uuid.NewString()
	logger := e.logger.With(zap.String("action", string(action)), zap.String("correlationId", cid))

	switch {
	case caller == "":
		return nil, e.fail(action, 0, cid, arena.ErrNoCaller, maxCreateMessage)
	case req.EntrantStake == nil || req.EntrantStake.Sign() <= 0 || req.VoterStake == nil || req.VoterStake.Sign() <= 0:
		return nil, e.fail(action, 0, cid, ErrInvalidStake, maxCreateMessage)
	case strings.TrimSpace(req.Title) == "":
		return nil, e.fail(action, 0, cid, ErrNoTitle, maxCreateMessage)
	}

	overlay := e.registry.Overlay(0, caller)
	if !overlay.Begin(action) {
		return nil, e.fail(action, 0, cid, ErrInProgress, maxCreateMessage)
	}
	defer func() {
		overlay.End(action)
		e.registry.retire(0, caller)
	}()

	txHash, err := e.ledger.Create(ctx, caller, req.EntrantStake, req.VoterStake)
	if err != nil {
		return nil, e.fail(action, 0, cid, err, maxCreateMessage)
	}
	logger.Info("transaction submitted", zap.String("txHash", txHash))

	receipt, err := e.awaitReceipt(ctx, action, txHash)
	if err != nil {
		return nil, e.fail(action, 0, cid, err, maxCreateMessage)
	}
	arenaID, ok := receipt.CreatedArenaID()
	if !ok {
		return nil, e.fail(action, 0, cid, ErrNoArenaID, maxCreateMessage)
	}

	res := &Result{Action: action, ArenaID: arenaID, TxHash: txHash, CorrelationID: cid}
	if e.store == nil {
		res.Warnings = append(res.Warnings, "challenge not stored: content store unavailable")
		e.recordOK(ctx, caller, res)
		return res, nil
	}

	challenge := arena.Challenge{Title: req.Title, Description: req.Description}
	if len(req.Media) > 0 {
		ref, err := e.store.UploadMedia(ctx, req.MediaName, req.Media)
		if err != nil {
			logger.Warn("media upload failed", zap.Uint64("arenaId", arenaID), zap.Error(err))
			res.Warnings = append(res.Warnings, utils.Truncate("media upload failed: "+err.Error(), maxCreateMessage))
		} else {
			challenge.MediaURL = ref
		}
	}
	if err := e.store.PutChallenge(ctx, arenaID, caller, challenge); err != nil {
		logger.Warn("challenge store failed", zap.Uint64("arenaId", arenaID), zap.Error(err))
		res.Warnings = append(res.Warnings, utils.Truncate("challenge not stored: "+err.Error(), maxCreateMessage))
	}

	logger.Info("arena created", zap.Uint64("arenaId", arenaID), zap.String("txHash", txHash))
	e.recordOK(ctx, caller, res)
	return res, nil
}

func (e *Executor) awaitReceipt(ctx context.Context, action arena.Action, txHash string) (*rpc.Receipt, error) {
	var receipt *rpc.Receipt
	err := retry.WithBackoff(ctx, e.retry, e.logger, "await "+string(action), func() error {
		r, err := e.ledger.Receipt(ctx, txHash)
		if err != nil {
			return err
		}
		if err := r.Err(); err != nil {
			if errors.Is(err, rpc.ErrPending) {
				return err
			}
			return retry.Permanent(err)
		}
		receipt = r
		return nil
	})
	return receipt, err
}

func (e *Executor) fail(action arena.Action, arenaID uint64, cid string, err error, max int) *ActionError {
	return &ActionError{
		Action:        action,
		ArenaID:       arenaID,
		CorrelationID: cid,
		Message:       utils.Truncate(err.Error(), max),
		Err:           err,
	}
}

func (e *Executor) record(ctx context.Context, caller, txHash string, aerr *ActionError) error {
	e.logger.Warn("action failed",
		zap.String("action", string(aerr.Action)),
		zap.Uint64("arenaId", aerr.ArenaID),
		zap.String("correlationId", aerr.CorrelationID),
		zap.Error(aerr.Err))
	if e.activity != nil {
		e.activity.Record(context.WithoutCancel(ctx), ActivityEntry{
			ArenaID:       aerr.ArenaID,
			Action:        aerr.Action,
			Caller:        caller,
			CorrelationID: aerr.CorrelationID,
			TxHash:        txHash,
			Message:       aerr.Message,
			At:            e.clock.Now(),
		})
	}
	return aerr
}

func (e *Executor) recordOK(ctx context.Context, caller string, res *Result) {
	if e.activity == nil {
		return
	}
	e.activity.Record(ctx, ActivityEntry{
		ArenaID:       res.ArenaID,
		Action:        res.Action,
		Caller:        caller,
		CorrelationID: res.CorrelationID,
		TxHash:        res.TxHash,
		OK:            true,
		At:            e.clock.Now(),
	})
}

func isParticipant(v *arena.View, addr string) bool {
	for _, p := range v.Participants {
		if arena.SameAddress(p.Address, addr) {
			return true
		}
	}
	return false
}
