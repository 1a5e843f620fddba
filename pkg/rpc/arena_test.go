package rpc

import (
	"context"
	"testing"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() RecordResponse {
	return RecordResponse{
		ID: 7, Creator: "0xabc", OpenUntil: 1000, VoteUntil: 1400,
		RoastStake: "10000000000000000", VoteStake: "5000000000000000",
		State: 1, ParticipantCount: 2, TotalVotes: 3,
		RoasterPool: "20000000000000000", VoterPool: "15000000000000000",
		HighestVotes: 2, NumWinners: 1, WinnerVoterCount: 2,
	}
}

func TestRecordResponse_ToSnapshot(t *testing.T) {
	r := validRecord()
	s, err := r.ToSnapshot()
	require.NoError(t, err)
	assert.Equal(t, arena.StatusVoting, s.Status)
	assert.Equal(t, "10000000000000000", s.EntrantStake.String())
	assert.Equal(t, "15000000000000000", s.VoterPool.String())
	assert.Equal(t, uint64(2), s.WinnerVoterCount)
}

func TestRecordResponse_Invalid(t *testing.T) {
	r := validRecord()
	r.VoteUntil = r.OpenUntil
	_, err := r.ToSnapshot()
	assert.ErrorIs(t, err, arena.ErrInvalidRecord)

	r = validRecord()
	r.VoterPool = "-1"
	_, err = r.ToSnapshot()
	assert.Error(t, err)
}

func TestHTTPClient_Reads(t *testing.T) {
	srv, seen := newTestServer(t, map[string]any{
		recordPath:            validRecord(),
		participantsPath:      addressList{Results: []string{"0xa", "0xb"}},
		winnersPath:           addressList{},
		voteCountsPath:        countList{Results: []uint64{1, 2}},
		hasJoinedPath:         boolValue{Value: true},
		hasVotedPath:          boolValue{Value: false},
		isWinnerPath:          boolValue{Value: true},
		hasClaimedEntrantPath: boolValue{Value: false},
		hasClaimedVoterPath:   boolValue{Value: true},
		votedForPath:          addressValue{Address: "0xb"},
	})
	c := newTestClient(srv.URL)
	ctx := context.Background()

	snap, err := c.Record(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), snap.ID)

	parts, err := c.Participants(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, parts)

	winners, err := c.Winners(ctx, 7)
	require.NoError(t, err)
	assert.NotNil(t, winners)
	assert.Empty(t, winners)

	counts, err := c.VoteCounts(ctx, 7, parts)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, counts)

	joined, err := c.HasJoined(ctx, 7, "0xa")
	require.NoError(t, err)
	assert.True(t, joined)

	votedFor, err := c.VotedFor(ctx, 7, "0xa")
	require.NoError(t, err)
	assert.Equal(t, "0xb", votedFor)

	claimed, err := c.HasClaimedVoter(ctx, 7, "0xa")
	require.NoError(t, err)
	assert.True(t, claimed)

	last := (*seen)[len(*seen)-1]
	assert.Equal(t, "0xC0ffee254729296a45a3885639AC7E10F9d54979", last["contract"])
	assert.Equal(t, float64(7), last["arenaId"])
	assert.Equal(t, "0xa", last["address"])
}

func TestHTTPClient_VoteCountsLengthMismatch(t *testing.T) {
	srv, _ := newTestServer(t, map[string]any{voteCountsPath: countList{Results: []uint64{1}}})
	c := newTestClient(srv.URL)
	_, err := c.VoteCounts(context.Background(), 1, []string{"0xa", "0xb"})
	assert.Error(t, err)
}
