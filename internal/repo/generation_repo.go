// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Generation
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a generation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Ownership: every query is scoped by user_id. A record belonging to another
// session is indistinguishable from a missing record — lookups and deletes
// report ErrNotFound, never a permission error.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hyroscale/go-voice-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateGeneration inserts a new Generation row owned by userID. The id is a
// randomly generated UUID (string) and CreatedAt is set to UTC. AudioData is
// stored verbatim — callers are responsible for the transport-safe encoding.
//
// On success, it returns the persisted Generation. On failure, a DB error.
func CreateGeneration(ctx context.Context, db *gorm.DB, userID, prompt, voiceID, audioData string) (*domain.Generation, error) {
	g := &domain.Generation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		VoiceID:   voiceID,
		AudioData: audioData,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		return nil, err
	}
	return g, nil
}

// FindLatestMatching returns the most recent generation owned by userID whose
// prompt and voice id match the arguments exactly (byte equality — no
// trimming, no case folding). It returns (nil, nil) when no row matches so
// callers can distinguish a cache miss from a storage failure.
func FindLatestMatching(ctx context.Context, db *gorm.DB, userID, prompt, voiceID string) (*domain.Generation, error) {
	var g domain.Generation
	err := db.WithContext(ctx).
		Where("user_id = ? AND prompt = ? AND voice_id = ?", userID, prompt, voiceID).
		Order("created_at desc").
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGenerations returns up to limit generations belonging to userID,
// ordered by creation time descending (most recent first). A limit <= 0
// disables the cap. It returns an empty slice when the user has no records.
func ListGenerations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Generation, error) {
	var out []domain.Generation
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountGenerations returns the total number of generations owned by userID.
func CountGenerations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Generation{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// DeleteGeneration removes the generation identified by id and owned by
// userID. If no rows are affected (record missing or owned by another
// session), it returns ErrNotFound.
func DeleteGeneration(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Generation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllGenerations removes every generation owned by userID and returns
// the number of rows removed. Clearing an empty history is not an error.
func DeleteAllGenerations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.Generation{})
	return res.RowsAffected, res.Error
}
