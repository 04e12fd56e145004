package testutil

import (
	"context"
	"testing"

	"github.com/yungbote/styletag-backend/internal/domain/runs"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, docID string, score int, action string) *runs.ClassificationRun {
	tb.Helper()
	r := &runs.ClassificationRun{
		DocID:   docID,
		Status:  runs.RunStatusSucceeded,
		Score:   score,
		Action:  action,
		Metrics: datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}
	return r
}
