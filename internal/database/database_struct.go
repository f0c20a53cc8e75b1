package database

import "gorm.io/gorm"

// Database is the gorm-backed store for conversations, messages and the
// read-only user and subject directories.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) DB() *gorm.DB {
	return d.db
}
