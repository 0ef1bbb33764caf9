package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// PhotoSlot is the database row behind a slot.
type PhotoSlot struct {
	Name      string `gorm:"primaryKey;size:64"`
	Data      []byte `gorm:"type:longblob"`
	UpdatedAt time.Time
}

// GormBackend keeps slots in a SQL database.
type GormBackend struct {
	db *gorm.DB
}

// OpenMySQL connects to the MySQL database described by dsn.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&PhotoSlot{}); err != nil {
		return nil, err
	}
	return &GormBackend{db: db}, nil
}

func (g *GormBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var slot PhotoSlot
	err := g.db.WithContext(ctx).Where("name = ?", key).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return slot.Data, nil
}

func (g *GormBackend) Put(ctx context.Context, key string, value []byte) error {
	return g.db.WithContext(ctx).Save(&PhotoSlot{Name: key, Data: value}).Error
}

func (g *GormBackend) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("name = ?", key).Delete(&PhotoSlot{}).Error
}
