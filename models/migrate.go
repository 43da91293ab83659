package models

import "gorm.io/gorm"

// AutoMigrate migrates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Profile{},
		&DesignOrder{},
		&OrderStage{},
		&ChatRoom{},
		&ChatMessage{},
		&OrderFile{},
		&MessageFile{},
		&PushSubscription{},
	)
}
