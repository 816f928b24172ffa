package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CollectionRow is the single-row-per-collection document table backing
// PostgresKV. The whole serialized collection lives in the Data column.
type CollectionRow struct {
	Name      string         `gorm:"primaryKey;size:64"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (CollectionRow) TableName() string {
	return "collections"
}

// PostgresKV keeps one JSON document per collection, upserted on save.
type PostgresKV struct {
	db *gorm.DB
}

func NewPostgresKV(db *gorm.DB) (*PostgresKV, error) {
	if err := db.AutoMigrate(&CollectionRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate collections table: %v", ErrStorageUnavailable, err)
	}
	return &PostgresKV{db: db}, nil
}

func (p *PostgresKV) Load(ctx context.Context, collection string) ([]byte, error) {
	var row CollectionRow
	err := p.db.WithContext(ctx).First(&row, "name = ?", collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStorageUnavailable, collection, err)
	}
	return []byte(row.Data), nil
}

func (p *PostgresKV) Save(ctx context.Context, collection string, data []byte) error {
	row := CollectionRow{
		Name:      collection,
		Data:      datatypes.JSON(data),
		UpdatedAt: time.Now(),
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrStorageUnavailable, collection, err)
	}
	return nil
}
