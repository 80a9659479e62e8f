package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hyroscale/go-voice-backend/internal/domain"
)

// ---------- test helpers ----------

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())

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

// seed inserts a generation with an explicit timestamp so ordering assertions
// are deterministic.
func seed(t *testing.T, db *gorm.DB, userID, prompt, voiceID, audio string, at time.Time) *domain.Generation {
	t.Helper()
	g := &domain.Generation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		VoiceID:   voiceID,
		AudioData: audio,
		CreatedAt: at,
	}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("seed generation: %v", err)
	}
	return g
}

// ---------- CreateGeneration ----------

func TestCreateGeneration_AssignsIDAndTimestamp(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	g, err := CreateGeneration(ctx, db, "u1", "hello", "v1", "data:audio/mpeg;base64,aGk=")
	if err != nil {
		t.Fatalf("CreateGeneration: %v", err)
	}
	if _, err := uuid.Parse(g.ID); err != nil {
		t.Fatalf("id is not a UUID: %q", g.ID)
	}
	if g.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not set")
	}

	var stored domain.Generation
	if err := db.First(&stored, "id = ?", g.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Prompt != "hello" || stored.VoiceID != "v1" || stored.UserID != "u1" {
		t.Fatalf("stored fields mismatch: %+v", stored)
	}
}

// ---------- FindLatestMatching ----------

func TestFindLatestMatching_ExactMatchOnly(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	seed(t, db, "u1", "Hello world", "v1", "a1", base)

	cases := []struct {
		name            string
		prompt, voice   string
		user            string
		wantMatch       bool
	}{
		{"exact", "Hello world", "v1", "u1", true},
		{"case differs", "hello world", "v1", "u1", false},
		{"whitespace differs", "Hello world ", "v1", "u1", false},
		{"voice differs", "Hello world", "v2", "u1", false},
		{"user differs", "Hello world", "v1", "u2", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FindLatestMatching(ctx, db, tc.user, tc.prompt, tc.voice)
			if err != nil {
				t.Fatalf("FindLatestMatching: %v", err)
			}
			if (got != nil) != tc.wantMatch {
				t.Fatalf("match = %v, want %v", got != nil, tc.wantMatch)
			}
		})
	}
}

func TestFindLatestMatching_ReturnsMostRecent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	seed(t, db, "u1", "p", "v", "old", base)
	newest := seed(t, db, "u1", "p", "v", "new", base.Add(time.Minute))

	got, err := FindLatestMatching(ctx, db, "u1", "p", "v")
	if err != nil {
		t.Fatalf("FindLatestMatching: %v", err)
	}
	if got == nil || got.ID != newest.ID || got.AudioData != "new" {
		t.Fatalf("expected newest match, got %+v", got)
	}
}

func TestFindLatestMatching_IgnoresDeletedRows(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	g := seed(t, db, "u1", "p", "v", "a", time.Now().UTC())
	if err := DeleteGeneration(ctx, db, g.ID, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := FindLatestMatching(ctx, db, "u1", "p", "v")
	if err != nil {
		t.Fatalf("FindLatestMatching: %v", err)
	}
	if got != nil {
		t.Fatalf("deleted row must not satisfy a cache lookup: %+v", got)
	}
}

// ---------- ListGenerations ----------

func TestListGenerations_OrderLimitAndScope(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	// Interleave two users.
	a1 := seed(t, db, "ua", "p1", "v", "x", base)
	b1 := seed(t, db, "ub", "p2", "v", "x", base.Add(1*time.Minute))
	a2 := seed(t, db, "ua", "p3", "v", "x", base.Add(2*time.Minute))
	_ = b1
	a3 := seed(t, db, "ua", "p4", "v", "x", base.Add(3*time.Minute))

	out, err := ListGenerations(ctx, db, "ua", 0)
	if err != nil {
		t.Fatalf("ListGenerations: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 rows for ua, got %d", len(out))
	}
	if out[0].ID != a3.ID || out[1].ID != a2.ID || out[2].ID != a1.ID {
		t.Fatalf("not ordered most-recent-first: %v %v %v", out[0].ID, out[1].ID, out[2].ID)
	}
	for _, g := range out {
		if g.UserID != "ua" {
			t.Fatalf("foreign record leaked into listing: %+v", g)
		}
	}

	capped, err := ListGenerations(ctx, db, "ua", 2)
	if err != nil {
		t.Fatalf("ListGenerations limit: %v", err)
	}
	if len(capped) != 2 || capped[0].ID != a3.ID {
		t.Fatalf("limit not applied from the top: %d", len(capped))
	}

	empty, err := ListGenerations(ctx, db, "nobody", 10)
	if err != nil {
		t.Fatalf("ListGenerations empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty slice, got %d", len(empty))
	}
}

// ---------- CountGenerations ----------

func TestCountGenerations(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, db, "u1", "p", "v", "a", now)
	seed(t, db, "u1", "q", "v", "a", now)
	seed(t, db, "u2", "p", "v", "a", now)

	n, err := CountGenerations(ctx, db, "u1")
	if err != nil {
		t.Fatalf("CountGenerations: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

// ---------- DeleteGeneration / DeleteAllGenerations ----------

func TestDeleteGeneration_OwnershipScoped(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	g := seed(t, db, "owner", "p", "v", "a", time.Now().UTC())

	// A different session must see "not found", and the row must survive.
	if err := DeleteGeneration(ctx, db, g.ID, "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user delete: want ErrNotFound, got %v", err)
	}
	var count int64
	if err := db.Model(&domain.Generation{}).Where("id = ?", g.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("record should survive a foreign delete attempt")
	}

	if err := DeleteGeneration(ctx, db, g.ID, "owner"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := DeleteGeneration(ctx, db, g.ID, "owner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestDeleteAllGenerations_OnlyOwnRecords(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, db, "ua", "p1", "v", "a", now)
	seed(t, db, "ub", "p2", "v", "a", now)
	seed(t, db, "ua", "p3", "v", "a", now)

	n, err := DeleteAllGenerations(ctx, db, "ua")
	if err != nil {
		t.Fatalf("DeleteAllGenerations: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}

	remaining, err := ListGenerations(ctx, db, "ub", 0)
	if err != nil {
		t.Fatalf("ListGenerations ub: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("ub records must be untouched, got %d", len(remaining))
	}

	// Clearing an already-empty history succeeds with zero count.
	n, err = DeleteAllGenerations(ctx, db, "ua")
	if err != nil || n != 0 {
		t.Fatalf("second clear: n=%d err=%v", n, err)
	}
}
