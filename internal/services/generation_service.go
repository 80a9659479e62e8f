// Package services – GenerationService
//
// This file implements GenerationService, the application-level component that
// owns the speech generation lifecycle. It validates inputs, consults the
// per-user exact-match cache, calls the text-to-speech provider on a miss,
// and appends the result to the user's history. History reads and deletions
// are ownership-scoped: a record that belongs to another user behaves exactly
// like one that does not exist.
//
// Observability: all public methods are OpenTelemetry-instrumented, and cache
// outcomes plus provider calls are counted with Prometheus.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hyroscale/go-voice-backend/internal/domain"
	"github.com/hyroscale/go-voice-backend/internal/repo"
	"github.com/hyroscale/go-voice-backend/internal/tts"
)

// audioDataPrefix is the stored encoding of provider audio: a data URL
// wrapping the raw MPEG bytes.
const audioDataPrefix = "data:audio/mpeg;base64,"

var (
	// genCacheLookups counts cache consultations by outcome (hit/miss).
	genCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_cache_lookups_total",
			Help: "Total exact-match cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// genProviderCalls counts synthesis calls by outcome (ok/error).
	genProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_provider_calls_total",
			Help: "Total text-to-speech provider calls by outcome.",
		},
		[]string{"outcome"},
	)

	// genProviderLat records provider synthesis duration in seconds.
	genProviderLat = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_provider_duration_seconds",
			Help:    "Duration of text-to-speech provider calls in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 90},
		},
	)
)

func init() {
	prometheus.MustRegister(genCacheLookups, genProviderCalls, genProviderLat)
}

// GenerationService coordinates validation, caching, synthesis, and history
// persistence for speech generations.
type GenerationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// TTS performs the actual synthesis on a cache miss.
	TTS tts.Synthesizer

	// MaxPromptChars caps prompts by rune length.
	MaxPromptChars int
	// HistoryLimit caps how many records a single listing may return.
	HistoryLimit int
}

// NewGenerationService constructs a GenerationService with sane defaults.
func NewGenerationService(db *gorm.DB, synth tts.Synthesizer) *GenerationService {
	return &GenerationService{
		DB:             db,
		TTS:            synth,
		MaxPromptChars: 500,
		HistoryLimit:   50,
	}
}

// Generate produces audio for (prompt, voiceID) on behalf of userID and
// appends a new history record. When an identical earlier generation exists
// for the same user the stored audio is reused instead of calling the
// provider; the returned record is still a fresh row with its own id and
// timestamp. The boolean reports whether the audio came from the cache.
//
// The prompt is matched byte-for-byte: no trimming, casefolding, or other
// normalization is applied, so prompts differing only in whitespace are
// distinct generations.
func (s *GenerationService) Generate(ctx context.Context, userID, prompt, voiceID string) (*domain.Generation, bool, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("voice.id", voiceID),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, false, ErrMissingUser
	}
	if verr := s.validateRequest(prompt, voiceID); verr != nil {
		return nil, false, verr
	}

	// Cache: newest identical generation for this user, if any.
	prior, err := repo.FindLatestMatching(ctx, s.DB, userID, prompt, voiceID)
	if err != nil {
		return nil, false, err
	}
	if prior != nil {
		genCacheLookups.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		rec, err := repo.CreateGeneration(ctx, s.DB, userID, prompt, voiceID, prior.AudioData)
		if err != nil {
			return nil, false, err
		}
		return rec, true, nil
	}
	genCacheLookups.WithLabelValues("miss").Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))

	start := time.Now()
	audio, err := s.TTS.Synthesize(ctx, prompt, voiceID)
	genProviderLat.Observe(time.Since(start).Seconds())
	if err != nil {
		genProviderCalls.WithLabelValues("error").Inc()
		return nil, false, err
	}
	genProviderCalls.WithLabelValues("ok").Inc()

	dataURL := audioDataPrefix + base64.StdEncoding.EncodeToString(audio)
	rec, err := repo.CreateGeneration(ctx, s.DB, userID, prompt, voiceID, dataURL)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// validateRequest collects every field problem of a generation request.
func (s *GenerationService) validateRequest(prompt, voiceID string) error {
	var violations []FieldViolation
	if strings.TrimSpace(prompt) == "" {
		violations = append(violations, FieldViolation{Field: "prompt", Message: "prompt is required"})
	} else if s.MaxPromptChars > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptChars {
		violations = append(violations, FieldViolation{
			Field:   "prompt",
			Message: "prompt exceeds maximum length",
		})
	}
	if strings.TrimSpace(voiceID) == "" {
		violations = append(violations, FieldViolation{Field: "voiceId", Message: "voiceId is required"})
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// List returns the user's most recent generations, newest first. The limit is
// clamped to [1, HistoryLimit]; zero or negative values select the full cap.
func (s *GenerationService) List(ctx context.Context, userID string, limit int) ([]domain.Generation, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	if limit <= 0 || limit > s.HistoryLimit {
		limit = s.HistoryLimit
	}
	items, err := repo.ListGenerations(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Generation{}
	}
	return items, nil
}

// HistoryStats returns the record count and latest creation time for a user's
// history, used by the HTTP layer for conditional responses.
func (s *GenerationService) HistoryStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil, ErrMissingUser
	}
	return repo.GenerationsStats(ctx, s.DB, userID)
}

// Delete removes one generation owned by userID. Unknown ids and records
// owned by someone else both return ErrGenerationNotFound.
func (s *GenerationService) Delete(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("generation.id", id),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	err := repo.DeleteGeneration(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrGenerationNotFound
	}
	return err
}

// Clear removes the user's entire history and reports how many records went.
// Clearing an empty history is not an error.
func (s *GenerationService) Clear(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/GenerationService")
	ctx, span := tr.Start(ctx, "Clear",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return 0, ErrMissingUser
	}
	return repo.DeleteAllGenerations(ctx, s.DB, userID)
}
