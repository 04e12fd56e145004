package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/styletag-backend/internal/data/repos"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type Repos struct {
	Runs        repos.RunRepo
	Decisions   repos.DecisionRepo
	Predictions repos.PredictionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Runs:        repos.NewRunRepo(db, log),
		Decisions:   repos.NewDecisionRepo(db, log),
		Predictions: repos.NewPredictionRepo(db, log),
	}
}
