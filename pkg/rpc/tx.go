package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
)

// ReceiptStatus tells whether a submitted transaction has been included.
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

// ErrPending is returned while a transaction is not yet durably accepted.
var ErrPending = errors.New("transaction pending")

// Event is a decoded contract event emitted by a transaction.
type Event struct {
	Name    string `json:"name"`
	ArenaID uint64 `json:"arenaId"`
}

// Receipt is the inclusion record of a transaction.
type Receipt struct {
	TxHash      string        `json:"txHash"`
	Status      ReceiptStatus `json:"status"`
	BlockHeight uint64        `json:"blockHeight"`
	Reason      string        `json:"reason,omitempty"`
	Events      []Event       `json:"events"`
}

// CreatedArenaID extracts the id carried by the ArenaCreated event.
func (r *Receipt) CreatedArenaID() (uint64, bool) {
	for _, e := range r.Events {
		if e.Name == "ArenaCreated" || e.Name == "RoastCreated" {
			return e.ArenaID, true
		}
	}
	return 0, false
}

// Err maps the receipt status to an error: nil once accepted, ErrPending while waiting and a
// revert error carrying the reason otherwise.
func (r *Receipt) Err() error {
	switch r.Status {
	case ReceiptSuccess:
		return nil
	case ReceiptPending, "":
		return ErrPending
	case ReceiptReverted:
		if r.Reason != "" {
			return fmt.Errorf("transaction %s reverted: %s", r.TxHash, r.Reason)
		}
		return fmt.Errorf("transaction %s reverted", r.TxHash)
	default:
		return fmt.Errorf("transaction %s: unknown status %q", r.TxHash, r.Status)
	}
}

type txRequest struct {
	Contract     string `json:"contract"`
	From         string `json:"from"`
	ArenaID      uint64 `json:"arenaId,omitempty"`
	Candidate    string `json:"candidate,omitempty"`
	Value        string `json:"value,omitempty"`
	EntrantStake string `json:"roastStake,omitempty"`
	VoterStake   string `json:"voteStake,omitempty"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
}

func weiString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func (c *HTTPClient) submit(ctx context.Context, path string, req txRequest) (string, error) {
	req.Contract = c.contract
	var out txResponse
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return "", err
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("submit %s: empty transaction hash", path)
	}
	return out.TxHash, nil
}

// Create opens a new arena. The creator funds their own entry, so value equals the entrant stake.
func (c *HTTPClient) Create(ctx context.Context, from string, entrantStake, voterStake *big.Int) (string, error) {
	return c.submit(ctx, createTxPath, txRequest{
		From:         from,
		Value:        weiString(entrantStake),
		EntrantStake: weiString(entrantStake),
		VoterStake:   weiString(voterStake),
	})
}

func (c *HTTPClient) Join(ctx context.Context, from string, id uint64, value *big.Int) (string, error) {
	return c.submit(ctx, joinTxPath, txRequest{From: from, ArenaID: id, Value: weiString(value)})
}

func (c *HTTPClient) Vote(ctx context.Context, from string, id uint64, candidate string, value *big.Int) (string, error) {
	return c.submit(ctx, voteTxPath, txRequest{From: from, ArenaID: id, Candidate: candidate, Value: weiString(value)})
}

func (c *HTTPClient) Settle(ctx context.Context, from string, id uint64) (string, error) {
	return c.submit(ctx, settleTxPath, txRequest{From: from, ArenaID: id})
}

func (c *HTTPClient) ClaimEntrantReward(ctx context.Context, from string, id uint64) (string, error) {
	return c.submit(ctx, claimEntrantTxPath, txRequest{From: from, ArenaID: id})
}

func (c *HTTPClient) ClaimVoterReward(ctx context.Context, from string, id uint64) (string, error) {
	return c.submit(ctx, claimVoterTxPath, txRequest{From: from, ArenaID: id})
}

func (c *HTTPClient) ClaimRefund(ctx context.Context, from string, id uint64) (string, error) {
	return c.submit(ctx, claimRefundTxPath, txRequest{From: from, ArenaID: id})
}

// Receipt fetches the inclusion record of txHash. A 404 means the replica has not seen it yet
// and is reported as a pending receipt.
func (c *HTTPClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	var out Receipt
	err := c.doJSON(ctx, http.MethodPost, receiptPath, map[string]any{"txHash": txHash}, &out)
	if IsNotFound(err) {
		return &Receipt{TxHash: txHash, Status: ReceiptPending}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.TxHash == "" {
		out.TxHash = txHash
	}
	return &out, nil
}
