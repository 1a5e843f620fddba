package arena

import "math/big"

// Share splits pool evenly across n recipients with floor division. The remainder stays
// undistributed. n == 0 or a nil pool yields zero shares.
func Share(pool *big.Int, n uint64) (share, remainder *big.Int) {
	if pool == nil || pool.Sign() <= 0 || n == 0 {
		return new(big.Int), new(big.Int)
	}
	share, remainder = new(big.Int).QuoRem(pool, new(big.Int).SetUint64(n), new(big.Int))
	return share, remainder
}

// Rewards are the per-recipient payouts computed from the latest snapshot.
type Rewards struct {
	EntrantShare     *big.Int `json:"entrantShare"`
	EntrantRemainder *big.Int `json:"entrantRemainder"`
	VoterShare       *big.Int `json:"voterShare"`
	VoterRemainder   *big.Int `json:"voterRemainder"`
}

// RewardsOf splits the entrant pool across declared winners and the voter pool across
// voters who backed a winner.
func RewardsOf(s *Snapshot) Rewards {
	es, er := Share(s.EntrantPool, s.NumWinners)
	vs, vr := Share(s.VoterPool, s.WinnerVoterCount)
	return Rewards{EntrantShare: es, EntrantRemainder: er, VoterShare: vs, VoterRemainder: vr}
}
