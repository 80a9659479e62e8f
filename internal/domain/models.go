// Package domain defines the persistence models for audio generations.
// These types are mapped with GORM and form the core data layer of the
// voice generation application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Generation represents a single synthesized speech artifact owned by a
// session. Records are immutable after creation; the only mutations are
// deletion (single or bulk, always scoped to the owning session).
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned at creation.
//   - UserID: opaque session identifier of the owner; indexed. Every query
//     and mutation is scoped by this value.
//   - Prompt: the synthesized text, stored verbatim (no trimming or case
//     folding — cache matching is exact).
//   - VoiceID: opaque provider voice key, stored as supplied.
//   - AudioData: the audio payload as a base64 data URL (audio/mpeg). Each
//     record carries its own copy so history entries delete independently.
//   - CreatedAt: sole ordering key for history (descending = most recent).
//   - UpdatedAt: managed by GORM; records are never updated in practice.
//   - DeletedAt: soft deletion marker. Deleted rows are invisible to both
//     history listings and cache lookups.
type Generation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"userId"     gorm:"type:varchar(64);not null;index:idx_user_generations,priority:1"`
	Prompt    string         `json:"prompt"     gorm:"type:text;not null"`
	VoiceID   string         `json:"voiceId"    gorm:"type:varchar(64);not null"`
	AudioData string         `json:"audioData"  gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"createdAt"  gorm:"index:idx_user_generations,priority:2"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Generation.
func (Generation) TableName() string { return "generations" }
