package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

const DefaultRunChannel = "styletag.runs"

// RunEvent announces a finished classification run.
type RunEvent struct {
	RunID    string    `json:"run_id"`
	DocID    string    `json:"doc_id"`
	Score    int       `json:"score"`
	Action   string    `json:"action"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

type RunEventBus struct {
	log     *logger.Logger
	rdb     publisher
	channel string
}

func NewRunEventBus(log *logger.Logger, rdb publisher, channel string) *RunEventBus {
	if channel == "" {
		channel = DefaultRunChannel
	}
	return &RunEventBus{log: log.With("service", "RunEventBus"), rdb: rdb, channel: channel}
}

func (b *RunEventBus) Publish(ctx context.Context, ev RunEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("run event bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("run event publish failed", "run_id", ev.RunID, "error", err)
		return err
	}
	return nil
}
