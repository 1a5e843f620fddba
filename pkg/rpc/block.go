package rpc

import (
	"context"
	"fmt"
	"net/http"
)

// HeadBlock represents the response from the /v1/query/height endpoint.
type HeadBlock struct {
	Height uint64 `json:"height"`
	// Time is the block timestamp in unix seconds.
	Time int64 `json:"time"`
}

// Head returns the latest block the queried replica knows about.
func (c *HTTPClient) Head(ctx context.Context) (*HeadBlock, error) {
	var resp HeadBlock
	if err := c.doJSON(ctx, http.MethodPost, headPath, map[string]any{}, &resp); err != nil {
		return nil, fmt.Errorf("cannot read head: %w", err)
	}
	if resp.Height == 0 {
		return nil, fmt.Errorf("cannot read head: empty height")
	}
	return &resp, nil
}

// LatestBlockTime returns the timestamp of the latest block in ledger seconds.
func (c *HTTPClient) LatestBlockTime(ctx context.Context) (int64, error) {
	head, err := c.Head(ctx)
	if err != nil {
		return 0, err
	}
	return head.Time, nil
}
