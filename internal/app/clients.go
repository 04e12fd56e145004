package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/styletag-backend/internal/clients/redis"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type Clients struct {
	Redis  *goredis.Client
	Events *redis.RunEventBus
	LLM    *llm.OpenAI
}

// wireClients dials redis when REDIS_ADDR is set. The LLM client is only
// built when needLLM is true so offline commands run without an API key.
func wireClients(log *logger.Logger, cfg Config, needLLM bool) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.RedisAddr != "" {
		rdb, err := redis.NewClient(log, cfg.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.Events = redis.NewRunEventBus(log, rdb, cfg.RunChannel)
	}

	if needLLM {
		client, err := llm.NewOpenAI(log, cfg.LLM)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init llm client: %w", err)
		}
		out.LLM = client
	}
	return out, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
