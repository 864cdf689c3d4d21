package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes call updates to a per-workspace pub/sub channel.
// The dashboard's realtime layer subscribes to calls:{workspace_id}.
type RedisNotifier struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *slog.Logger) *RedisNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &RedisNotifier{rdb: rdb, log: log}
}

func (n *RedisNotifier) CallUpdated(ctx context.Context, u CallUpdate) {
	b, err := json.Marshal(u)
	if err != nil {
		n.log.Warn("call update marshal failed", "call_id", u.CallID, "err", err)
		return
	}
	if err := n.rdb.Publish(ctx, "calls:"+u.WorkspaceID, b).Err(); err != nil {
		n.log.Warn("call update publish failed", "call_id", u.CallID, "err", err)
	}
}
