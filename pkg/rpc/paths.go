package rpc

// RPC endpoint paths of the arena ledger gateway.

const (
	// Chain queries
	headPath    = "/v1/query/height"
	receiptPath = "/v1/query/tx-receipt"

	// Arena record queries
	recordPath       = "/v1/arena/record"
	participantsPath = "/v1/arena/participants"
	winnersPath      = "/v1/arena/winners"
	voteCountsPath   = "/v1/arena/vote-counts"

	// Per-address queries
	hasJoinedPath         = "/v1/arena/has-joined"
	hasVotedPath          = "/v1/arena/has-voted"
	votedForPath          = "/v1/arena/voted-for"
	isWinnerPath          = "/v1/arena/is-winner"
	hasClaimedEntrantPath = "/v1/arena/has-claimed-entrant"
	hasClaimedVoterPath   = "/v1/arena/has-claimed-voter"

	// Transactions
	createTxPath       = "/v1/tx/arena/create"
	joinTxPath         = "/v1/tx/arena/join"
	voteTxPath         = "/v1/tx/arena/vote"
	settleTxPath       = "/v1/tx/arena/settle"
	claimEntrantTxPath = "/v1/tx/arena/claim-entrant"
	claimVoterTxPath   = "/v1/tx/arena/claim-voter"
	claimRefundTxPath  = "/v1/tx/arena/claim-refund"
)
