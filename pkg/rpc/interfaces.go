package rpc

import (
	"context"
	"math/big"

	"github.com/canopy-network/arenax/pkg/arena"
)

// Reader captures the ledger reads used to build an arena snapshot. Each call is an
// independent request and may land on a different replica.
type Reader interface {
	LatestBlockTime(ctx context.Context) (int64, error)
	Record(ctx context.Context, id uint64) (*arena.Snapshot, error)
	Participants(ctx context.Context, id uint64) ([]string, error)
	Winners(ctx context.Context, id uint64) ([]string, error)
	VoteCounts(ctx context.Context, id uint64, candidates []string) ([]uint64, error)
	HasJoined(ctx context.Context, id uint64, who string) (bool, error)
	HasVoted(ctx context.Context, id uint64, who string) (bool, error)
	VotedFor(ctx context.Context, id uint64, who string) (string, error)
	IsWinner(ctx context.Context, id uint64, who string) (bool, error)
	HasClaimedEntrant(ctx context.Context, id uint64, who string) (bool, error)
	HasClaimedVoter(ctx context.Context, id uint64, who string) (bool, error)
}

// Writer submits state-changing transactions. Every call returns the transaction hash; use
// Receipt to learn whether it was durably accepted.
type Writer interface {
	Create(ctx context.Context, from string, entrantStake, voterStake *big.Int) (string, error)
	Join(ctx context.Context, from string, id uint64, value *big.Int) (string, error)
	Vote(ctx context.Context, from string, id uint64, candidate string, value *big.Int) (string, error)
	Settle(ctx context.Context, from string, id uint64) (string, error)
	ClaimEntrantReward(ctx context.Context, from string, id uint64) (string, error)
	ClaimVoterReward(ctx context.Context, from string, id uint64) (string, error)
	ClaimRefund(ctx context.Context, from string, id uint64) (string, error)
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

// Client is the full ledger surface.
type Client interface {
	Reader
	Writer
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}

var _ Client = (*HTTPClient)(nil)
