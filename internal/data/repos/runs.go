package repos

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/styletag-backend/internal/domain/runs"
	"github.com/yungbote/styletag-backend/internal/pkg/dbctx"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type RunRepo interface {
	Create(dbc dbctx.Context, run *runs.ClassificationRun) error
	Update(dbc dbctx.Context, run *runs.ClassificationRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*runs.ClassificationRun, error)
	ListByDoc(dbc dbctx.Context, docID string, limit int) ([]*runs.ClassificationRun, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	repoLog := baseLog.With("repo", "RunRepo")
	return &runRepo{db: db, log: repoLog}
}

func (r *runRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Context())
}

func (r *runRepo) Create(dbc dbctx.Context, run *runs.ClassificationRun) error {
	return MapError("RunRepo.Create", r.tx(dbc).Create(run).Error)
}

func (r *runRepo) Update(dbc dbctx.Context, run *runs.ClassificationRun) error {
	if run == nil || run.ID == uuid.Nil {
		return MapError("RunRepo.Update", gorm.ErrMissingWhereClause)
	}
	return MapError("RunRepo.Update", r.tx(dbc).Save(run).Error)
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*runs.ClassificationRun, error) {
	var run runs.ClassificationRun
	if err := r.tx(dbc).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, MapError("RunRepo.GetByID", err)
	}
	return &run, nil
}

func (r *runRepo) ListByDoc(dbc dbctx.Context, docID string, limit int) ([]*runs.ClassificationRun, error) {
	var out []*runs.ClassificationRun
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 20
	}
	err := r.tx(dbc).
		Where("doc_id = ?", docID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, MapError("RunRepo.ListByDoc", err)
	}
	return out, nil
}

type DecisionRepo interface {
	// UpsertBatch writes decisions keyed by (run_id, paragraph_id).
	UpsertBatch(dbc dbctx.Context, decisions []*runs.ClassificationDecision) error
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*runs.ClassificationDecision, error)
}

type decisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDecisionRepo(db *gorm.DB, baseLog *logger.Logger) DecisionRepo {
	repoLog := baseLog.With("repo", "DecisionRepo")
	return &decisionRepo{db: db, log: repoLog}
}

func (r *decisionRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Context())
}

func (r *decisionRepo) UpsertBatch(dbc dbctx.Context, decisions []*runs.ClassificationDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	err := r.tx(dbc).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "paragraph_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"zone", "text_preview", "tag", "confidence", "repaired", "repair_reason",
				"rule_based", "fallback_used", "original_tag",
			}),
		}).
		CreateInBatches(decisions, 200).Error
	return MapError("DecisionRepo.UpsertBatch", err)
}

func (r *decisionRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*runs.ClassificationDecision, error) {
	var out []*runs.ClassificationDecision
	err := r.tx(dbc).
		Where("run_id = ?", runID).
		Order("paragraph_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, MapError("DecisionRepo.ListByRun", err)
	}
	return out, nil
}
