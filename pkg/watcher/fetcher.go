package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/rpc"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Fetcher reads one arena from the ledger in two concurrent batches. Only the record read is
// required; every other read falls back to the previous round or a default and is logged.
type Fetcher struct {
	reader rpc.Reader
	pool   pond.Pool
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewFetcher returns a Fetcher running its batches on pool.
func NewFetcher(reader rpc.Reader, pool pond.Pool, clock clockwork.Clock, logger *zap.Logger) *Fetcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Fetcher{reader: reader, pool: pool, clock: clock, logger: logger}
}

// Fetch reads arena id as seen by caller. prev is the last successful round of the same
// session; its lists, vote counts and clock offset are kept when the matching read fails.
func (f *Fetcher) Fetch(ctx context.Context, id uint64, caller string, prev *arena.Round) (*arena.Round, error) {
	var (
		snap         *arena.Snapshot
		participants []string
		winners      []string
		blockTime    int64
		recordErr    error
		partErr      error
		winnersErr   error
		blockErr     error
	)

	group := f.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			recordErr = err
			return
		}
		snap, recordErr = f.reader.Record(groupCtx, id)
	})
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			partErr = err
			return
		}
		participants, partErr = f.reader.Participants(groupCtx, id)
	})
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			winnersErr = err
			return
		}
		winners, winnersErr = f.reader.Winners(groupCtx, id)
	})
	group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			blockErr = err
			return
		}
		blockTime, blockErr = f.reader.LatestBlockTime(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		f.logger.Warn("arena primary batch encountered error", zap.Uint64("arenaId", id), zap.Error(err))
	}

	if recordErr != nil {
		return nil, fmt.Errorf("read arena %d record: %w", id, recordErr)
	}
	if snap == nil {
		return nil, fmt.Errorf("read arena %d record: %w", id, arena.ErrInvalidRecord)
	}
	if prev != nil && prev.Snapshot.ID != id {
		prev = nil
	}

	var offset arena.Offset
	switch {
	case blockErr == nil:
		// Sampled right after the block time read so the offset reflects the same instant.
		offset = arena.EstimateOffset(blockTime, f.clock.Now())
	case prev != nil:
		f.logger.Warn("block time read failed, keeping previous clock offset", zap.Uint64("arenaId", id), zap.Error(blockErr))
		offset = prev.Offset
	default:
		f.logger.Warn("block time read failed, assuming no clock offset", zap.Uint64("arenaId", id), zap.Error(blockErr))
	}

	participants = f.keepList(id, "participants", participants, partErr, prev, func(r *arena.Round) []string { return r.Participants })
	winners = f.keepList(id, "winners", winners, winnersErr, prev, func(r *arena.Round) []string { return r.Winners })

	round := &arena.Round{
		Snapshot:     *snap,
		Participants: participants,
		Winners:      winners,
		Offset:       offset,
		Caller:       caller,
	}

	round.VoteCounts, round.Flags = f.secondary(ctx, id, caller, participants, prev)
	round.FetchedAt = f.clock.Now()
	return round, nil
}

// keepList returns the read list, or the previous round's list when the read failed. An empty
// list is only used when there is nothing to fall back to.
func (f *Fetcher) keepList(id uint64, name string, list []string, err error, prev *arena.Round, from func(*arena.Round) []string) []string {
	if err != nil {
		if prev != nil {
			f.logger.Warn(name+" read failed, keeping previous list", zap.Uint64("arenaId", id), zap.Error(err))
			list = append([]string(nil), from(prev)...)
		} else {
			f.logger.Debug(name+" read failed, using empty list", zap.Uint64("arenaId", id), zap.Error(err))
			list = nil
		}
	}
	if list == nil {
		list = []string{}
	}
	return list
}

// secondary runs the vote count and per-user reads. It never fails: every read has a default.
func (f *Fetcher) secondary(ctx context.Context, id uint64, caller string, participants []string, prev *arena.Round) (map[string]uint64, *arena.UserFlags) {
	var (
		counts    []uint64
		countsErr error
		flags     arena.UserFlags
	)

	group := f.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	if len(participants) > 0 {
		group.Submit(func() {
			counts, countsErr = f.reader.VoteCounts(groupCtx, id, participants)
		})
	}

	if caller != "" {
		reads := []struct {
			name string
			fn   func(context.Context, uint64, string) (bool, error)
			dst  *bool
		}{
			{"hasJoined", f.reader.HasJoined, &flags.Joined},
			{"hasVoted", f.reader.HasVoted, &flags.Voted},
			{"isWinner", f.reader.IsWinner, &flags.Winner},
			{"hasClaimedEntrant", f.reader.HasClaimedEntrant, &flags.ClaimedEntrant},
			{"hasClaimedVoter", f.reader.HasClaimedVoter, &flags.ClaimedVoter},
		}
		for _, r := range reads {
			group.Submit(func() {
				v, err := r.fn(groupCtx, id, caller)
				if err != nil {
					f.logger.Debug("user flag read failed, defaulting to false",
						zap.Uint64("arenaId", id), zap.String("read", r.name), zap.Error(err))
					return
				}
				*r.dst = v
			})
		}
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		f.logger.Warn("arena secondary batch encountered error", zap.Uint64("arenaId", id), zap.Error(err))
	}

	voteCounts := make(map[string]uint64, len(participants))
	switch {
	case len(participants) == 0:
	case countsErr != nil || len(counts) != len(participants):
		if prev != nil && prev.VoteCounts != nil {
			f.logger.Warn("vote count read failed, keeping previous counts", zap.Uint64("arenaId", id), zap.Error(countsErr))
			for k, v := range prev.VoteCounts {
				voteCounts[k] = v
			}
		} else {
			f.logger.Debug("vote count read failed, using zero counts", zap.Uint64("arenaId", id), zap.Error(countsErr))
		}
	default:
		for i, p := range participants {
			voteCounts[arena.AddressKey(p)] = counts[i]
		}
	}

	if caller == "" {
		return voteCounts, nil
	}

	if flags.Voted {
		votedFor, err := f.reader.VotedFor(ctx, id, caller)
		if err != nil {
			f.logger.Debug("voted-for read failed", zap.Uint64("arenaId", id), zap.Error(err))
		} else if votedFor != "" {
			flags.VotedFor = votedFor
			won, err := f.reader.IsWinner(ctx, id, votedFor)
			if err != nil {
				f.logger.Debug("voted-for winner read failed", zap.Uint64("arenaId", id), zap.Error(err))
			}
			flags.VotedForWinner = won
		}
	}
	return voteCounts, &flags
}
