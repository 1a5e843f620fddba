package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/retry"
	"github.com/canopy-network/arenax/pkg/rpc"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"
)

const (
	alice = "0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"
	bob   = "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
	carol = "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
)

var (
	t0        = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	errDown   = errors.New("replica unavailable")
	testPool  = pond.NewPool(16)
	fastRetry = retry.Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 1}
)

// fakeLedger is an in-memory ledger. Every read can be failed by name.
type fakeLedger struct {
	mu sync.Mutex

	snap         arena.Snapshot
	participants []string
	winners      []string
	votes        map[string]uint64
	blockTime    int64
	joined       map[string]bool
	voted        map[string]string
	claimed      map[string]bool

	fail  map[string]error
	calls map[string]int
	// gate, when set, blocks Record until closed.
	gate chan struct{}

	receipts map[string]*rpc.Receipt
	// revert makes transactions of a kind revert with the given reason.
	revert map[string]string
	txs    []fakeTx
}

type fakeTx struct {
	Kind      string
	From      string
	ArenaID   uint64
	Candidate string
	Value     *big.Int
}

func newFakeLedger(clock clockwork.Clock) *fakeLedger {
	now := clock.Now().Unix()
	return &fakeLedger{
		snap: arena.Snapshot{
			ID:           1,
			Creator:      carol,
			OpenUntil:    now + 60,
			VoteUntil:    now + 120,
			EntrantStake: big.NewInt(100),
			VoterStake:   big.NewInt(10),
			Status:       arena.StatusOpen,
			EntrantPool:  big.NewInt(0),
			VoterPool:    big.NewInt(0),
		},
		participants: []string{},
		winners:      []string{},
		votes:        map[string]uint64{},
		blockTime:    now,
		joined:       map[string]bool{},
		voted:        map[string]string{},
		claimed:      map[string]bool{},
		fail:         map[string]error{},
		calls:        map[string]int{},
		receipts:     map[string]*rpc.Receipt{},
		revert:       map[string]string{},
	}
}

func (f *fakeLedger) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeLedger) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeLedger) Fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, name)
		return
	}
	f.fail[name] = err
}

func (f *fakeLedger) Update(fn func(l *fakeLedger)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeLedger) LatestBlockTime(context.Context) (int64, error) {
	if err := f.call("blockTime"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockTime, nil
}

func (f *fakeLedger) Record(ctx context.Context, id uint64) (*arena.Snapshot, error) {
	if err := f.call("record"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	s.ID = id
	return &s, nil
}

func (f *fakeLedger) Participants(context.Context, uint64) ([]string, error) {
	if err := f.call("participants"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.participants...), nil
}

func (f *fakeLedger) Winners(context.Context, uint64) ([]string, error) {
	if err := f.call("winners"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.winners...), nil
}

func (f *fakeLedger) VoteCounts(_ context.Context, _ uint64, candidates []string) ([]uint64, error) {
	if err := f.call("voteCounts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(candidates))
	for i, c := range candidates {
		out[i] = f.votes[arena.AddressKey(c)]
	}
	return out, nil
}

func (f *fakeLedger) HasJoined(_ context.Context, _ uint64, who string) (bool, error) {
	if err := f.call("hasJoined"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined[arena.AddressKey(who)], nil
}

func (f *fakeLedger) HasVoted(_ context.Context, _ uint64, who string) (bool, error) {
	if err := f.call("hasVoted"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.voted[arena.AddressKey(who)]
	return ok, nil
}

func (f *fakeLedger) VotedFor(_ context.Context, _ uint64, who string) (string, error) {
	if err := f.call("votedFor"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voted[arena.AddressKey(who)], nil
}

func (f *fakeLedger) IsWinner(_ context.Context, _ uint64, who string) (bool, error) {
	if err := f.call("isWinner"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.winners {
		if arena.SameAddress(w, who) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) HasClaimedEntrant(_ context.Context, _ uint64, who string) (bool, error) {
	if err := f.call("hasClaimedEntrant"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed["entrant:"+arena.AddressKey(who)], nil
}

func (f *fakeLedger) HasClaimedVoter(_ context.Context, _ uint64, who string) (bool, error) {
	if err := f.call("hasClaimedVoter"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed["voter:"+arena.AddressKey(who)], nil
}

// submit records a transaction and, unless its kind is set to revert, makes it succeed and
// applies its effect through apply.
func (f *fakeLedger) submit(kind string, tx fakeTx, apply func()) (string, error) {
	if err := f.call(kind); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx.Kind = kind
	f.txs = append(f.txs, tx)
	hash := fmt.Sprintf("0xtx%s%d", kind, len(f.txs))
	if reason, ok := f.revert[kind]; ok {
		f.receipts[hash] = &rpc.Receipt{TxHash: hash, Status: rpc.ReceiptReverted, Reason: reason}
		return hash, nil
	}
	f.receipts[hash] = &rpc.Receipt{TxHash: hash, Status: rpc.ReceiptSuccess}
	if apply != nil {
		apply()
	}
	return hash, nil
}

func (f *fakeLedger) Create(_ context.Context, from string, entrantStake, _ *big.Int) (string, error) {
	hash, err := f.submit("create", fakeTx{From: from, Value: entrantStake}, nil)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.receipts[hash]; r.Status == rpc.ReceiptSuccess && len(r.Events) == 0 {
		r.Events = []rpc.Event{{Name: "ArenaCreated", ArenaID: 9}}
	}
	return hash, nil
}

func (f *fakeLedger) Join(_ context.Context, from string, id uint64, value *big.Int) (string, error) {
	return f.submit("join", fakeTx{From: from, ArenaID: id, Value: value}, func() {
		f.joined[arena.AddressKey(from)] = true
		f.participants = append(f.participants, from)
		f.snap.ParticipantCount++
	})
}

func (f *fakeLedger) Vote(_ context.Context, from string, id uint64, candidate string, value *big.Int) (string, error) {
	return f.submit("vote", fakeTx{From: from, ArenaID: id, Candidate: candidate, Value: value}, func() {
		f.voted[arena.AddressKey(from)] = candidate
		f.votes[arena.AddressKey(candidate)]++
	})
}

func (f *fakeLedger) Settle(_ context.Context, from string, id uint64) (string, error) {
	return f.submit("settle", fakeTx{From: from, ArenaID: id}, nil)
}

func (f *fakeLedger) ClaimEntrantReward(_ context.Context, from string, id uint64) (string, error) {
	return f.submit("claimEntrant", fakeTx{From: from, ArenaID: id}, func() {
		f.claimed["entrant:"+arena.AddressKey(from)] = true
	})
}

func (f *fakeLedger) ClaimVoterReward(_ context.Context, from string, id uint64) (string, error) {
	return f.submit("claimVoter", fakeTx{From: from, ArenaID: id}, func() {
		f.claimed["voter:"+arena.AddressKey(from)] = true
	})
}

func (f *fakeLedger) ClaimRefund(_ context.Context, from string, id uint64) (string, error) {
	return f.submit("claimRefund", fakeTx{From: from, ArenaID: id}, nil)
}

func (f *fakeLedger) Receipt(_ context.Context, hash string) (*rpc.Receipt, error) {
	if err := f.call("receipt"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return &rpc.Receipt{TxHash: hash, Status: rpc.ReceiptPending}, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeLedger) Txs() []fakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeTx(nil), f.txs...)
}

var _ rpc.Client = (*fakeLedger)(nil)

// fakeStore is an in-memory content service.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[uint64][]arena.Entry
	challenge map[uint64]arena.Challenge
	fail      map[string]error
	calls     map[string]int
	recent    []arena.Summary
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:   map[uint64][]arena.Entry{},
		challenge: map[uint64]arena.Challenge{},
		fail:      map[string]error{},
		calls:     map[string]int{},
	}
}

func (s *fakeStore) call(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	return s.fail[name]
}

func (s *fakeStore) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeStore) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[name] = err
}

func (s *fakeStore) Entries(_ context.Context, id uint64) ([]arena.Entry, error) {
	if err := s.call("entries"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]arena.Entry{}, s.entries[id]...), nil
}

func (s *fakeStore) PutEntry(_ context.Context, id uint64, author, text string) error {
	if err := s.call("putEntry"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = append(s.entries[id], arena.Entry{Author: author, Text: text})
	return nil
}

func (s *fakeStore) Challenge(_ context.Context, id uint64) (*arena.Challenge, error) {
	if err := s.call("challenge"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenge[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) PutChallenge(_ context.Context, id uint64, _ string, c arena.Challenge) error {
	if err := s.call("putChallenge"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge[id] = c
	return nil
}

func (s *fakeStore) Profile(_ context.Context, address string) (*arena.Profile, error) {
	return &arena.Profile{Address: address}, s.call("profile")
}

func (s *fakeStore) PutProfile(context.Context, arena.Profile) error {
	return s.call("putProfile")
}

func (s *fakeStore) UploadMedia(_ context.Context, name string, _ []byte) (string, error) {
	if err := s.call("upload"); err != nil {
		return "", err
	}
	return "/uploads/" + name, nil
}

func (s *fakeStore) Recent(context.Context, int) ([]arena.Summary, error) {
	if err := s.call("recent"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]arena.Summary(nil), s.recent...), nil
}

func (s *fakeStore) ByUser(context.Context, string) ([]arena.Summary, error) {
	return nil, s.call("byUser")
}

// capture records every published view.
type capture struct {
	mu    sync.Mutex
	views []arena.View
}

func (c *capture) Publish(_ context.Context, v *arena.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views = append(c.views, *v)
}

func (c *capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.views)
}

func (c *capture) Last() arena.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[len(c.views)-1]
}

type harness struct {
	clock    *clockwork.FakeClock
	ledger   *fakeLedger
	store    *fakeStore
	pub      *capture
	fetcher  *Fetcher
	registry *Registry
	executor *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(t0)
	ledger := newFakeLedger(clock)
	store := newFakeStore()
	pub := &capture{}
	fetcher := NewFetcher(ledger, testPool, clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry(ctx, fetcher, store, pub, clock, logger, Config{})
	t.Cleanup(func() {
		registry.StopAll()
		cancel()
	})

	return &harness{
		clock:    clock,
		ledger:   ledger,
		store:    store,
		pub:      pub,
		fetcher:  fetcher,
		registry: registry,
		executor: NewExecutor(ledger, store, registry, nil, fastRetry, clock, logger),
	}
}
