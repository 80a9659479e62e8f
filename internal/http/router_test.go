package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hyroscale/go-voice-backend/internal/config"
	"github.com/hyroscale/go-voice-backend/internal/domain"
	"github.com/hyroscale/go-voice-backend/internal/tts"
)

// --- fake synthesizer to satisfy tts.Synthesizer ---

type fakeSynth struct {
	calls int
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Generation{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		MaxPromptChars: 500,
		DefaultVoiceID: "v-default",
		Voices: []config.Voice{
			{ID: "v-default", Name: "George"},
			{ID: "v-2", Name: "Sarah"},
		},
		HistoryLimit:   50,
		RateRPS:        100,
		RateBurst:      100,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false},
		IdempotencyTTL: 0, // handler default applies
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, synth tts.Synthesizer) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, synth, testConfig())
	return r, db
}

func postGeneration(t *testing.T, r *gin.Engine, body map[string]any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_CORS_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, &fakeSynth{audio: []byte("a")})

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestPostGeneration_CreateThenCacheHit(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mpeg")}
	r, _ := newRouter(t, synth)

	body := map[string]any{"prompt": "hello", "voiceId": "v-default", "userId": "u1"}

	w := postGeneration(t, r, body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first POST = %d body=%s", w.Code, w.Body.String())
	}
	var first struct {
		Generation domain.Generation `json:"generation"`
		Cached     bool              `json:"cached"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Cached || first.Generation.ID == "" || first.Generation.AudioData == "" {
		t.Fatalf("unexpected first response: %+v", first)
	}

	// Identical request replays stored audio without a provider call.
	w = postGeneration(t, r, body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("second POST = %d", w.Code)
	}
	var second struct {
		Generation domain.Generation `json:"generation"`
		Cached     bool              `json:"cached"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	if !second.Cached {
		t.Fatalf("expected cache hit on identical request")
	}
	if second.Generation.ID == first.Generation.ID {
		t.Fatalf("cache hit must append a fresh record")
	}
	if synth.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", synth.calls)
	}
}

func TestPostGeneration_ValidationAndSessionErrors(t *testing.T) {
	r, _ := newRouter(t, &fakeSynth{audio: []byte("a")})

	// Missing user → session error, not a field violation.
	w := postGeneration(t, r, map[string]any{"prompt": "hi", "voiceId": "v"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing user = %d", w.Code)
	}
	var env map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["code"] != "session_required" {
		t.Fatalf("code = %v", env["code"])
	}

	// Missing prompt and voiceId → both reported.
	w = postGeneration(t, r, map[string]any{"userId": "u1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid fields = %d", w.Code)
	}
	var verr struct {
		Code    string `json:"code"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &verr)
	if verr.Code != "validation_failed" || len(verr.Details) != 2 {
		t.Fatalf("validation envelope: %s", w.Body.String())
	}
}

func TestPostGeneration_ProviderStatusPassthrough(t *testing.T) {
	synth := &fakeSynth{err: &tts.ProviderError{StatusCode: http.StatusTooManyRequests, Detail: "quota"}}
	r, _ := newRouter(t, synth)

	w := postGeneration(t, r, map[string]any{"prompt": "hi", "voiceId": "v", "userId": "u1"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("provider passthrough = %d", w.Code)
	}
	var env map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["code"] != "provider_error" {
		t.Fatalf("code = %v", env["code"])
	}
}

func TestPostGeneration_MissingAPIKeyIsOpaque500(t *testing.T) {
	synth := &fakeSynth{err: tts.ErrMissingAPIKey}
	r, _ := newRouter(t, synth)

	w := postGeneration(t, r, map[string]any{"prompt": "hi", "voiceId": "v", "userId": "u1"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("config fault = %d", w.Code)
	}
	var env map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["code"] != "internal_error" {
		t.Fatalf("code = %v", env["code"])
	}
	if msg, _ := env["message"].(string); msg != "generation failed" {
		t.Fatalf("config fault must stay opaque, got %q", msg)
	}
}

func TestPostGeneration_IdempotencyReplay(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mpeg")}
	r, _ := newRouter(t, synth)

	body := map[string]any{"prompt": "hello", "voiceId": "v", "userId": "u1"}
	hdr := map[string]string{"Idempotency-Key": "key-123"}

	w := postGeneration(t, r, body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first POST = %d", w.Code)
	}
	var first struct {
		Generation domain.Generation `json:"generation"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	// Same key: replayed record, same id, no new provider call, no new row.
	w = postGeneration(t, r, body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("replay POST = %d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header")
	}
	var replay struct {
		Generation domain.Generation `json:"generation"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &replay)
	if replay.Generation.ID != first.Generation.ID {
		t.Fatalf("replay must return the original record")
	}
	if synth.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", synth.calls)
	}
}

func TestHistory_ListDeleteClear(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mpeg")}
	r, _ := newRouter(t, synth)

	for _, p := range []string{"one", "two", "three"} {
		w := postGeneration(t, r, map[string]any{"prompt": p, "voiceId": "v", "userId": "u1"}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("seed %q = %d", p, w.Code)
		}
	}

	// Missing identity → 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no identity = %d", w.Code)
	}

	// Listing is newest-first and carries an ETag.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /history = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}
	var list struct {
		Generations []domain.Generation `json:"generations"`
		Count       int                 `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 3 || list.Generations[0].Prompt != "three" {
		t.Fatalf("listing: %s", w.Body.String())
	}

	// Conditional re-request → 304
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional GET = %d", w.Code)
	}

	// limit param honored
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=2", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 2 {
		t.Fatalf("limit=2 returned %d", list.Count)
	}

	// Delete one: wrong owner → 404, right owner → 204.
	target := list.Generations[0].ID
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/history/"+target, nil)
	req.Header.Set("X-User-ID", "intruder")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/history/"+target, nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("owner delete = %d", w.Code)
	}

	// Clear the rest.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("clear = %d", w.Code)
	}
	var cleared struct {
		Deleted int64 `json:"deleted"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &cleared)
	if cleared.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", cleared.Deleted)
	}
}

func TestVoices_Catalog(t *testing.T) {
	r, _ := newRouter(t, &fakeSynth{audio: []byte("a")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/voices", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /voices = %d", w.Code)
	}
	var resp struct {
		Voices []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"voices"`
		DefaultVoiceID string `json:"defaultVoiceId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Voices) != 2 || resp.DefaultVoiceID != "v-default" {
		t.Fatalf("voices: %s", w.Body.String())
	}
	if resp.Voices[0].Name != "George" {
		t.Fatalf("voice mapping: %+v", resp.Voices)
	}
}
