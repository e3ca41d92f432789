package db

import (
	"buywatch/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.WatchedToken{},
		&models.DetectedTransaction{},
		&models.TraderPosition{},
		&models.ChatSettings{},
		&models.StatusDeliveryMark{},
	)
}
