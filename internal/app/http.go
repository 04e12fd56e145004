package app

import (
	"context"

	apphttp "github.com/yungbote/styletag-backend/internal/http"
	httpH "github.com/yungbote/styletag-backend/internal/http/handlers"
)

func (a *App) wireHTTP() *apphttp.Server {
	a.Log.Info("Wiring http...")
	checks := map[string]httpH.Pinger{
		"db": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Clients.Redis.Ping(ctx).Err() }
	}

	cfg := apphttp.RouterConfig{
		Log:           a.Log,
		ServiceName:   a.Cfg.Otel.ServiceName,
		CORSOrigins:   a.Cfg.CORSOrigins,
		Metrics:       a.Metrics,
		HealthHandler: httpH.NewHealthHandler(checks),
		RunHandler:    httpH.NewRunHandler(a.Repos.Runs, a.Repos.Decisions),
	}
	if a.Services.Pipeline != nil {
		cfg.ClassifyHandler = httpH.NewClassifyHandler(a.Services.Pipeline, a.Cfg.MaxBodyBytes)
	}
	return apphttp.NewServer(cfg)
}
