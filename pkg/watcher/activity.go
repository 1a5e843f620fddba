package watcher

import (
	"context"
	"strconv"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

// ActivityEntry is one recorded action outcome.
type ActivityEntry struct {
	ID            string       `json:"id,omitempty"`
	ArenaID       uint64       `json:"arenaId"`
	Action        arena.Action `json:"action"`
	Caller        string       `json:"caller"`
	CorrelationID string       `json:"correlationId"`
	TxHash        string       `json:"txHash,omitempty"`
	OK            bool         `json:"ok"`
	Message       string       `json:"message,omitempty"`
	At            time.Time    `json:"at"`
}

// ActivityLog records action outcomes. Recording is best effort.
type ActivityLog interface {
	Record(ctx context.Context, e ActivityEntry)
	Recent(ctx context.Context, arenaID uint64, n int64) ([]ActivityEntry, error)
}

type streamClient interface {
	XAdd(ctx context.Context, stream string, values map[string]interface{}) string
	XRevRange(ctx context.Context, stream string, count int64) ([]goredis.XMessage, error)
}

// RedisActivity keeps a capped stream of action outcomes per arena.
type RedisActivity struct {
	client streamClient
}

func NewRedisActivity(client streamClient) *RedisActivity {
	return &RedisActivity{client: client}
}

func (a *RedisActivity) Record(ctx context.Context, e ActivityEntry) {
	a.client.XAdd(ctx, redis.ActivityStream(e.ArenaID), map[string]interface{}{
		"action":        string(e.Action),
		"caller":        e.Caller,
		"correlationId": e.CorrelationID,
		"txHash":        e.TxHash,
		"ok":            strconv.FormatBool(e.OK),
		"message":       e.Message,
		"at":            e.At.UTC().Format(time.RFC3339Nano),
	})
}

func (a *RedisActivity) Recent(ctx context.Context, arenaID uint64, n int64) ([]ActivityEntry, error) {
	msgs, err := a.client.XRevRange(ctx, redis.ActivityStream(arenaID), n)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityEntry, 0, len(msgs))
	for _, m := range msgs {
		e := ActivityEntry{
			ID:            m.ID,
			ArenaID:       arenaID,
			Action:        arena.Action(field(m.Values, "action")),
			Caller:        field(m.Values, "caller"),
			CorrelationID: field(m.Values, "correlationId"),
			TxHash:        field(m.Values, "txHash"),
			Message:       field(m.Values, "message"),
		}
		e.OK, _ = strconv.ParseBool(field(m.Values, "ok"))
		e.At, _ = time.Parse(time.RFC3339Nano, field(m.Values, "at"))
		out = append(out, e)
	}
	return out, nil
}

func field(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
