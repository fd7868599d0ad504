// Package sqlitestore provides a SQLite-backed override database.
package sqlitestore

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tierlimit/internal/tierlimit"
)

// OverrideRecord is the persisted form of a negotiated override.
type OverrideRecord struct {
	ID          uint   `gorm:"primaryKey"`
	PrincipalID string `gorm:"uniqueIndex:principal_resource;index"`
	Resource    string `gorm:"uniqueIndex:principal_resource"`
	BaseLimit   int64
	BurstLimit  int64
	WindowNanos int64
	Version     int64
	UpdatedAt   time.Time
}

// IdempotencyRecord maps a create idempotency key to its payload.
type IdempotencyRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Key         string `gorm:"uniqueIndex"`
	PrincipalID string
	Resource    string
	PayloadHash string
}

// OverrideDB persists overrides in SQLite through GORM.
type OverrideDB struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (and migrates) an override database at path.
func Open(path string, now func() time.Time) (*OverrideDB, error) {
	if path == "" {
		return nil, tierlimit.ErrInvalidInput
	}
	if now == nil {
		now = time.Now
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OverrideRecord{}, &IdempotencyRecord{}); err != nil {
		return nil, err
	}
	return &OverrideDB{db: db, now: now}, nil
}

// Create inserts an override with idempotency enforcement.
func (o *OverrideDB) Create(ctx context.Context, req *tierlimit.CreateOverrideRequest) (*tierlimit.Override, error) {
	if o == nil || o.db == nil {
		return nil, tierlimit.ErrStorageUnavailable
	}
	if req == nil || req.PrincipalID == "" || req.Resource == "" {
		return nil, tierlimit.ErrInvalidInput
	}
	if req.BaseLimit <= 0 || req.BurstLimit <= 0 || req.BurstLimit > req.BaseLimit || req.Window < 0 {
		return nil, tierlimit.ErrInvalidInput
	}
	payloadHash := tierlimit.HashCreatePayload(req)

	var created *tierlimit.Override
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.IdempotencyKey != "" {
			var seen IdempotencyRecord
			err := tx.Where("key = ?", req.IdempotencyKey).First(&seen).Error
			if err == nil {
				if seen.PayloadHash != payloadHash {
					return tierlimit.ErrConflict
				}
				var record OverrideRecord
				if err := tx.Where("principal_id = ? AND resource = ?", seen.PrincipalID, seen.Resource).First(&record).Error; err != nil {
					return tierlimit.ErrConflict
				}
				created = fromRecord(&record)
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var existing OverrideRecord
		err := tx.Where("principal_id = ? AND resource = ?", req.PrincipalID, req.Resource).First(&existing).Error
		if err == nil {
			return tierlimit.ErrConflict
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		record := OverrideRecord{
			PrincipalID: req.PrincipalID,
			Resource:    req.Resource,
			BaseLimit:   req.BaseLimit,
			BurstLimit:  req.BurstLimit,
			WindowNanos: int64(req.Window),
			Version:     1,
			UpdatedAt:   o.now(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			idem := IdempotencyRecord{
				Key:         req.IdempotencyKey,
				PrincipalID: req.PrincipalID,
				Resource:    req.Resource,
				PayloadHash: payloadHash,
			}
			if err := tx.Create(&idem).Error; err != nil {
				return err
			}
		}
		created = fromRecord(&record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update modifies an override with optimistic concurrency control.
func (o *OverrideDB) Update(ctx context.Context, req *tierlimit.UpdateOverrideRequest) (*tierlimit.Override, error) {
	if o == nil || o.db == nil {
		return nil, tierlimit.ErrStorageUnavailable
	}
	if req == nil || req.PrincipalID == "" || req.Resource == "" {
		return nil, tierlimit.ErrInvalidInput
	}
	if req.BaseLimit <= 0 || req.BurstLimit <= 0 || req.BurstLimit > req.BaseLimit || req.Window < 0 {
		return nil, tierlimit.ErrInvalidInput
	}

	var updated *tierlimit.Override
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record OverrideRecord
		err := tx.Where("principal_id = ? AND resource = ?", req.PrincipalID, req.Resource).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tierlimit.ErrNotFound
		}
		if err != nil {
			return err
		}
		if record.Version != req.ExpectedVersion {
			return tierlimit.ErrConflict
		}

		record.BaseLimit = req.BaseLimit
		record.BurstLimit = req.BurstLimit
		record.WindowNanos = int64(req.Window)
		record.Version++
		record.UpdatedAt = o.now()
		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		updated = fromRecord(&record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an override if the version matches.
func (o *OverrideDB) Delete(ctx context.Context, principalID, resource string, expectedVersion int64) error {
	if o == nil || o.db == nil {
		return tierlimit.ErrStorageUnavailable
	}
	if principalID == "" || resource == "" {
		return tierlimit.ErrInvalidInput
	}
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record OverrideRecord
		err := tx.Where("principal_id = ? AND resource = ?", principalID, resource).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tierlimit.ErrNotFound
		}
		if err != nil {
			return err
		}
		if record.Version != expectedVersion {
			return tierlimit.ErrConflict
		}
		return tx.Delete(&record).Error
	})
}

// Get returns an override by principal/resource.
func (o *OverrideDB) Get(ctx context.Context, principalID, resource string) (*tierlimit.Override, error) {
	if o == nil || o.db == nil {
		return nil, tierlimit.ErrStorageUnavailable
	}
	if principalID == "" || resource == "" {
		return nil, tierlimit.ErrInvalidInput
	}
	var record OverrideRecord
	err := o.db.WithContext(ctx).Where("principal_id = ? AND resource = ?", principalID, resource).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tierlimit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&record), nil
}

// List returns all overrides for a principal.
func (o *OverrideDB) List(ctx context.Context, principalID string) ([]*tierlimit.Override, error) {
	if o == nil || o.db == nil {
		return nil, tierlimit.ErrStorageUnavailable
	}
	if principalID == "" {
		return nil, tierlimit.ErrInvalidInput
	}
	var records []OverrideRecord
	if err := o.db.WithContext(ctx).Where("principal_id = ?", principalID).Find(&records).Error; err != nil {
		return nil, err
	}
	overrides := make([]*tierlimit.Override, 0, len(records))
	for i := range records {
		overrides = append(overrides, fromRecord(&records[i]))
	}
	return overrides, nil
}

// LoadAll returns all overrides.
func (o *OverrideDB) LoadAll(ctx context.Context) ([]*tierlimit.Override, error) {
	if o == nil || o.db == nil {
		return nil, tierlimit.ErrStorageUnavailable
	}
	var records []OverrideRecord
	if err := o.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	overrides := make([]*tierlimit.Override, 0, len(records))
	for i := range records {
		overrides = append(overrides, fromRecord(&records[i]))
	}
	return overrides, nil
}

func fromRecord(record *OverrideRecord) *tierlimit.Override {
	return &tierlimit.Override{
		PrincipalID: record.PrincipalID,
		Resource:    record.Resource,
		BaseLimit:   record.BaseLimit,
		BurstLimit:  record.BurstLimit,
		Window:      time.Duration(record.WindowNanos),
		Version:     record.Version,
		UpdatedAt:   record.UpdatedAt,
	}
}
