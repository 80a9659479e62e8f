// History HTTP handlers.
//
// This file exposes REST endpoints over a user's generation history:
//   - GET    /history        (list newest-first, capped, ETag support)
//   - DELETE /history/{id}   (remove one owned record)
//   - DELETE /history        (clear the whole history)
//
// Identity rides in the X-User-ID header for all three endpoints; a request
// without it is a session error. Ownership is absolute: a record owned by
// someone else is indistinguishable from one that does not exist.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hyroscale/go-voice-backend/internal/domain"
	"github.com/hyroscale/go-voice-backend/internal/services"
	"github.com/hyroscale/go-voice-backend/internal/utils"
)

// ListHistoryResponse wraps a capped, newest-first slice of generations.
type ListHistoryResponse struct {
	Generations []domain.Generation `json:"generations"`
	Count       int                 `json:"count"`
}

// ClearHistoryResponse reports how many records a bulk clear removed.
type ClearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List generation history
// @Description Returns the user's most recent generations, newest first, capped at the configured limit.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        History
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "User ID"                     example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       limit          query   int     false "Max records to return (clamped to the cap)" minimum(1)
//
// @Success     200  {object} handlers.ListHistoryResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeSessionRequired, "X-User-ID header required")
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.genSvc.HistoryStats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"history:%s:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	limit := utils.AtoiDefault(c.Query("limit"), 0)
	items, err := h.genSvc.List(ctx, uid, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListHistoryResponse{Generations: items, Count: len(items)})
}

// DeleteGeneration godoc
// @ID          deleteGeneration
// @Summary     Delete one generation
// @Description Removes a single generation owned by the current user. Records owned by
// @Description other users are reported as not found, never as forbidden.
// @Tags        History
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"         example(user123)
// @Param       id         path    string  true  "Generation ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Generation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /history/{id} [delete]
func (h *Handlers) DeleteGeneration(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeSessionRequired, "X-User-ID header required")
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "generation id must be a UUID")
		return
	}

	if err := h.genSvc.Delete(c.Request.Context(), uid, id); err != nil {
		if errors.Is(err, services.ErrGenerationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "generation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		return
	}

	noContent(c)
}

// ClearHistory godoc
// @ID          clearHistory
// @Summary     Clear generation history
// @Description Removes every generation owned by the current user and reports the count.
// @Description Clearing an empty history succeeds with deleted=0.
// @Tags        History
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
//
// @Success     200  {object} handlers.ClearHistoryResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /history [delete]
func (h *Handlers) ClearHistory(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeSessionRequired, "X-User-ID header required")
		return
	}

	n, err := h.genSvc.Clear(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ClearHistoryResponse{Deleted: n})
}
