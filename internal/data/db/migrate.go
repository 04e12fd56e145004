package db

import (
	"fmt"

	"github.com/yungbote/styletag-backend/internal/domain/runs"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(runs.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
