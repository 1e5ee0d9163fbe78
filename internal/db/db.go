package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"attune/internal/chat"
	"attune/internal/config"
	"attune/internal/memory"
)

var DB *gorm.DB

func Init(cfg *config.Config) error {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&memory.EntryRecord{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&chat.Conversation{}, &chat.Message{}); err != nil {
		return err
	}

	DB = db
	log.Printf("Database connected and migrated")
	return nil
}
