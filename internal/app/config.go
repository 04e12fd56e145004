package app

import (
	"strings"
	"time"

	"github.com/yungbote/styletag-backend/internal/classify"
	"github.com/yungbote/styletag-backend/internal/clients/redis"
	"github.com/yungbote/styletag-backend/internal/data/db"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/observability"
	"github.com/yungbote/styletag-backend/internal/platform/envutil"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/quality"
)

type Config struct {
	HTTPAddr     string
	CORSOrigins  []string
	MaxBodyBytes int64

	DB         db.Config
	RedisAddr  string
	RunChannel string
	CacheTTL   time.Duration
	RulesPath  string

	// GroundTruthPath is a JSONL file of manually tagged paragraphs used for
	// grounded few-shot examples. Empty disables them.
	GroundTruthPath string

	LLM      llm.Config
	Classify classify.Options
	RefZone  refzone.Options

	// AutoApplyThreshold is a unit confidence; CONFIDENCE_THRESHOLD accepts
	// either 0.85 or 85.
	AutoApplyThreshold float64

	Otel observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		HTTPAddr:     envutil.String("HTTP_ADDR", ":8080"),
		CORSOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		MaxBodyBytes: int64(envutil.Int("HTTP_MAX_BODY_MB", 32)) << 20,

		DB:         db.ConfigFromEnv(),
		RedisAddr:  envutil.String("REDIS_ADDR", ""),
		RunChannel: envutil.String("REDIS_RUN_CHANNEL", redis.DefaultRunChannel),
		CacheTTL:   time.Duration(envutil.Int("CACHE_TTL_DAYS", 30)) * 24 * time.Hour,
		RulesPath:  envutil.String("RULES_PATH", ""),

		GroundTruthPath: envutil.String("GROUND_TRUTH_PATH", ""),

		LLM:      llm.ConfigFromEnv(),
		Classify: classify.OptionsFromEnv(),
		RefZone:  refzone.Options{EnableDensity: envutil.Bool("REFZONE_DENSITY_ENABLED", false)},

		AutoApplyThreshold: envutil.Float("CONFIDENCE_THRESHOLD", quality.DefaultAutoApplyThreshold),

		Otel: observability.OtelConfig{
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "styletag"),
			Environment: envutil.String("APP_ENV", "development"),
			Version:     envutil.String("APP_VERSION", ""),
		},
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * 24 * time.Hour
	}
	if cfg.AutoApplyThreshold > 1 {
		cfg.AutoApplyThreshold /= 100
	}
	if log != nil {
		log.Info("config loaded",
			"db_driver", cfg.DB.Driver,
			"redis", cfg.RedisAddr != "",
			"rules", cfg.RulesPath != "",
			"ground_truth", cfg.GroundTruthPath != "",
			"model", cfg.LLM.Model,
			"http_addr", cfg.HTTPAddr,
		)
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
