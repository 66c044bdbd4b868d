// Package repository persists document revisions, the command journal and
// asset metadata in the relational store.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mixdown/command"
	"mixdown/db"
	"mixdown/model"
)

// RevisionRecord is one durable document revision: the full document as
// JSON. Structural sharing keeps in-memory revisions cheap; durable ones are
// written whole so a project can be reopened from any row.
type RevisionRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Revision  uint64    `gorm:"uniqueIndex"`
	Document  []byte    `gorm:"type:longblob"`
	CreatedAt time.Time
}

// JournalRecord is one applied command and its inverse.
type JournalRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Seq       uint64 `gorm:"uniqueIndex"`
	RevBefore uint64
	RevAfter  uint64
	Kind      string `gorm:"size:64;index"`
	Command   []byte `gorm:"type:longblob"`
	Inverse   []byte `gorm:"type:longblob"`
	AppliedAt time.Time
}

// AssetRecord mirrors asset metadata; the PCM bytes live in the blob store.
type AssetRecord struct {
	ID             string `gorm:"primaryKey;size:64"` // hex sha-256
	Name           string `gorm:"size:255"`
	SampleRate     int
	Channels       int
	DurationFrames int64
	SizeBytes      int64
	Unusable       bool
	CreatedAt      time.Time
}

// DocumentRepository reads and writes engine state.
type DocumentRepository interface {
	SaveRevision(doc *model.Document) error
	LoadLatest() (*model.Document, error)
	SaveJournalEntry(entry command.Entry) error
	SaveAsset(a *model.Asset) error
}

type gormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository returns a repository over the shared GORM
// connection. Call db.ConnectGormDB first.
func NewGormDocumentRepository() DocumentRepository {
	return &gormDocumentRepository{db: db.GormDB}
}

// Migrate creates the persistence schema.
func Migrate() error {
	return db.AutoMigrateModels(&RevisionRecord{}, &JournalRecord{}, &AssetRecord{})
}

func (r *gormDocumentRepository) SaveRevision(doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document revision %d: %w", doc.Revision, err)
	}
	rec := RevisionRecord{
		Revision:  doc.Revision,
		Document:  data,
		CreatedAt: time.Now(),
	}
	// Undo rewinds the revision counter, so rows above the current revision
	// describe a discarded branch and the current number may be reused.
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("revision > ?", doc.Revision).Delete(&RevisionRecord{}).Error; err != nil {
			return fmt.Errorf("prune revisions above %d: %w", doc.Revision, err)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "revision"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "created_at"}),
		}).Create(&rec).Error; err != nil {
			return fmt.Errorf("save revision %d: %w", doc.Revision, err)
		}
		return nil
	})
}

func (r *gormDocumentRepository) LoadLatest() (*model.Document, error) {
	var rec RevisionRecord
	err := r.db.Order("revision DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest revision: %w", err)
	}

	var doc model.Document
	if err := json.Unmarshal(rec.Document, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal revision %d: %w", rec.Revision, err)
	}
	return &doc, nil
}

func (r *gormDocumentRepository) SaveJournalEntry(entry command.Entry) error {
	cmdData, err := json.Marshal(entry.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	invData, err := json.Marshal(entry.Inverse)
	if err != nil {
		return fmt.Errorf("marshal inverse: %w", err)
	}
	rec := JournalRecord{
		Seq:       entry.Seq,
		RevBefore: entry.RevBefore,
		RevAfter:  entry.RevAfter,
		Kind:      string(entry.Command.Kind),
		Command:   cmdData,
		Inverse:   invData,
		AppliedAt: entry.AppliedAt,
	}
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("save journal entry %d: %w", entry.Seq, err)
	}
	return nil
}

func (r *gormDocumentRepository) SaveAsset(a *model.Asset) error {
	rec := AssetRecord{
		ID:             string(a.ID),
		Name:           a.Name,
		SampleRate:     a.SampleRate,
		Channels:       a.Channels,
		DurationFrames: a.DurationFrames,
		SizeBytes:      a.SizeBytes,
		Unusable:       a.Unusable,
		CreatedAt:      a.CreatedAt,
	}
	if err := r.db.Save(&rec).Error; err != nil {
		return fmt.Errorf("save asset %s: %w", a.ID, err)
	}
	return nil
}
