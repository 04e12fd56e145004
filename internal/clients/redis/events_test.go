package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return goredis.NewIntResult(1, f.err)
}

func TestRunEventBusPublish(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewRunEventBus(logger.Nop(), pub, "")
	if err := bus.Publish(context.Background(), RunEvent{RunID: "r1", DocID: "d1", Score: 88, Action: "PASS"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pub.channel != DefaultRunChannel {
		t.Fatalf("channel: %s", pub.channel)
	}
	var ev RunEvent
	if err := json.Unmarshal(pub.payload, &ev); err != nil || ev.RunID != "r1" || ev.Score != 88 {
		t.Fatalf("payload: %s %v", pub.payload, err)
	}

	pub.err = errors.New("down")
	if err := bus.Publish(context.Background(), RunEvent{}); err == nil {
		t.Fatalf("expected publish error")
	}
	var nilBus *RunEventBus
	if err := nilBus.Publish(context.Background(), RunEvent{}); err == nil {
		t.Fatalf("nil bus must error")
	}
}
