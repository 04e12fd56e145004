package repos

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/styletag-backend/internal/domain/runs"
	"github.com/yungbote/styletag-backend/internal/pkg/dbctx"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type PredictionRepo interface {
	// Get returns the live entry for key. Expired entries read as not found.
	Get(dbc dbctx.Context, key string, now time.Time) (*runs.PredictionEntry, error)
	Upsert(dbc dbctx.Context, entry *runs.PredictionEntry) error
	Count(dbc dbctx.Context, now time.Time) (int64, error)
	DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error)
}

type predictionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictionRepo(db *gorm.DB, baseLog *logger.Logger) PredictionRepo {
	repoLog := baseLog.With("repo", "PredictionRepo")
	return &predictionRepo{db: db, log: repoLog}
}

func (r *predictionRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Context())
}

func (r *predictionRepo) Get(dbc dbctx.Context, key string, now time.Time) (*runs.PredictionEntry, error) {
	var entry runs.PredictionEntry
	err := r.tx(dbc).
		Where("cache_key = ? AND expires_at > ?", key, now).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, MapError("PredictionRepo.Get", err)
	}
	if entry.Key == "" {
		return nil, MapError("PredictionRepo.Get", gorm.ErrRecordNotFound)
	}
	return &entry, nil
}

func (r *predictionRepo) Upsert(dbc dbctx.Context, entry *runs.PredictionEntry) error {
	if entry == nil || entry.Key == "" {
		return MapError("PredictionRepo.Upsert", errors.Join(ErrPrecondition, errors.New("empty key")))
	}
	err := r.tx(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"doc_id", "paragraph_id", "zone", "prediction", "expires_at", "updated_at"}),
		}).
		Create(entry).Error
	return MapError("PredictionRepo.Upsert", err)
}

func (r *predictionRepo) Count(dbc dbctx.Context, now time.Time) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&runs.PredictionEntry{}).Where("expires_at > ?", now).Count(&n).Error
	if err != nil {
		return 0, MapError("PredictionRepo.Count", err)
	}
	return n, nil
}

func (r *predictionRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	res := r.tx(dbc).Where("expires_at <= ?", now).Delete(&runs.PredictionEntry{})
	if res.Error != nil {
		return 0, MapError("PredictionRepo.DeleteExpired", res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.Debug("expired predictions removed", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
