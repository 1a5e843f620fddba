package arena

import "errors"

var (
	// ErrInvalidRecord is returned when a ledger record violates openUntil < voteUntil or carries an unknown status.
	ErrInvalidRecord = errors.New("invalid arena record")
	// ErrNoCaller is returned for actions that need a caller identity.
	ErrNoCaller = errors.New("caller identity required")
	// ErrNotEligible is returned when the derived eligibility forbids an action.
	ErrNotEligible = errors.New("action not permitted in current state")
	// ErrInvalidAddress is returned for malformed hex addresses.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidSignature is returned when a signed message does not recover to a key.
	ErrInvalidSignature = errors.New("invalid signature")
)
