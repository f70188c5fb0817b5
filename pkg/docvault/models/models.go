package models

import "gorm.io/gorm"

// AllModels returns every persisted model. Order is not significant; gorm
// creates referenced tables before the tables holding their foreign keys.
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&Document{},
		&DocumentShare{},
		&DocumentComment{},
		&ShareLink{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
