// Generation HTTP handlers.
//
// This file exposes the speech generation endpoint:
//   - POST /generations   (synthesize audio for a prompt/voice and append it
//     to the requesting user's history)
//
// Handlers are transport-thin:
//   - decode & pre-validate inputs
//   - delegate to the application service (GenerationService)
//   - translate service/provider errors into the HTTP error taxonomy
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, key), the handler returns that recorded generation
// and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hyroscale/go-voice-backend/internal/config"
	"github.com/hyroscale/go-voice-backend/internal/domain"
	"github.com/hyroscale/go-voice-backend/internal/http/middleware"
	"github.com/hyroscale/go-voice-backend/internal/repo"
	"github.com/hyroscale/go-voice-backend/internal/services"
	"github.com/hyroscale/go-voice-backend/internal/tts"
)

//
// Service contracts (context-aware)
//

// GenerationService defines the generation lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type GenerationService interface {
	// Generate synthesizes (or replays from the exact-match cache) audio and
	// appends a history record. The boolean reports a cache hit.
	Generate(ctx context.Context, userID, prompt, voiceID string) (*domain.Generation, bool, error)
	// List returns the user's newest generations up to limit.
	List(ctx context.Context, userID string, limit int) ([]domain.Generation, error)
	// HistoryStats returns the record count and latest creation time.
	HistoryStats(ctx context.Context, userID string) (int64, *time.Time, error)
	// Delete removes one generation owned by userID.
	Delete(ctx context.Context, userID, id string) error
	// Clear removes the user's whole history and reports the count.
	Clear(ctx context.Context, userID string) (int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for generations, history, and voices.
// It depends on an abstract service interface to keep transport concerns
// separate from business logic.
type Handlers struct {
	genSvc GenerationService

	// Voice catalog served by GET /voices (informational, not enforced).
	voices         []config.Voice
	defaultVoiceID string

	// IdempotencyTTL bounds how long a replayed key stays valid.
	IdempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given service and voice
// catalog.
func New(genSvc GenerationService, voices []config.Voice, defaultVoiceID string) *Handlers {
	return &Handlers{
		genSvc:         genSvc,
		voices:         voices,
		defaultVoiceID: defaultVoiceID,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// userID extracts the user identity from the Gin context (set by upstream
// middleware) or the X-User-ID header. It returns "" when no identity
// accompanies the request; callers decide whether that is an error.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return c.GetHeader("X-User-ID")
	}
	return ""
}

//
// DTOs
//

// GenerateRequest is the JSON payload for creating a generation.
type GenerateRequest struct {
	// Prompt is the text to synthesize. Matched byte-for-byte by the cache.
	Prompt string `json:"prompt" example:"Welcome to the show."`
	// VoiceID selects the provider voice.
	VoiceID string `json:"voiceId" example:"JBFqnCBsd6RMkjVDRZzb"`
	// UserID identifies the requesting user session.
	UserID string `json:"userId" example:"user123"`
}

// GenerateResponse is the JSON envelope for a created generation.
type GenerateResponse struct {
	// Generation is the freshly appended history record.
	Generation *domain.Generation `json:"generation"`
	// Cached is true when the audio was reused from an identical earlier
	// generation instead of calling the provider.
	Cached bool `json:"cached"`
}

//
// Handlers
//

// PostGeneration godoc
// @ID          postGeneration
// @Summary     Generate speech for a prompt
// @Description Synthesizes audio for (prompt, voiceId) on behalf of userId and appends it to the user's history.
// @Description Identical repeat requests reuse the stored audio without calling the provider.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Generations
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.GenerateRequest  true  "Generation payload"
//
// @Success     201  {object}  handlers.GenerateResponse     "Created generation"
// @Failure     400  {object}  handlers.ErrorResponse        "Validation or session error"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /generations [post]
func (h *Handlers) PostGeneration(c *gin.Context) {
	ctx := c.Request.Context()

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Identity may ride in the body or be established upstream.
	currentUser := req.UserID
	if currentUser == "" {
		currentUser = userID(c)
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && currentUser != "" {
		if svc, okSvc := h.genSvc.(*services.GenerationService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetGenerationByID(ctx, svc.DB, rec.GenerationID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusCreated, GenerateResponse{Generation: prev, Cached: true})
					return
				}
			}
		}
	}

	rec, cached, err := h.genSvc.Generate(ctx, currentUser, req.Prompt, req.VoiceID)
	if err != nil {
		h.failGenerate(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.genSvc.(*services.GenerationService); okSvc && svc.DB != nil {
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, idemKey, rec.ID, http.StatusCreated, h.IdempotencyTTL)
		}
	}

	ok(c, http.StatusCreated, GenerateResponse{Generation: rec, Cached: cached})
}

// failGenerate maps generation errors onto the HTTP error taxonomy.
//
// Provider failures pass through the provider's own status so callers can tell
// quota problems (429) from bad voices (4xx) without parsing messages. The
// missing-credential case stays opaque: it is a deployment fault, and the
// caller can do nothing about it.
func (h *Handlers) failGenerate(c *gin.Context, err error) {
	var verr *services.ValidationError
	var perr *tts.ProviderError

	switch {
	case errors.Is(err, services.ErrMissingUser):
		fail(c, http.StatusBadRequest, ErrCodeSessionRequired, "userId required")
	case errors.As(err, &verr):
		failWith(c, http.StatusBadRequest, ErrCodeValidation, "invalid generation request", verr.Violations)
	case errors.Is(err, tts.ErrMissingAPIKey):
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "generation failed")
	case errors.As(err, &perr):
		status := perr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		fail(c, status, ErrCodeProviderError, "speech provider error: "+perr.Detail)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeGenerationFailed, err.Error())
	}
}
