// Voice catalog handler.
//
// GET /voices serves the configured voice display list so clients can build a
// picker without hardcoding provider ids. The catalog is informational: the
// generation endpoint does not enforce it, the provider remains the authority
// on voice validity.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/hyroscale/go-voice-backend/internal/config"
)

// VoiceDTO is one selectable voice.
type VoiceDTO struct {
	ID   string `json:"id" example:"JBFqnCBsd6RMkjVDRZzb"`
	Name string `json:"name" example:"George"`
}

// ListVoicesResponse wraps the voice catalog and the preselected default.
type ListVoicesResponse struct {
	Voices         []VoiceDTO `json:"voices"`
	DefaultVoiceID string     `json:"defaultVoiceId"`
}

// ListVoices godoc
// @ID          listVoices
// @Summary     List available voices
// @Description Returns the configured voice catalog and the default voice id.
// @Tags        Voices
// @Produce     json
//
// @Success     200  {object} handlers.ListVoicesResponse
// @Router      /voices [get]
func (h *Handlers) ListVoices(c *gin.Context) {
	voices := lo.Map(h.voices, func(v config.Voice, _ int) VoiceDTO {
		return VoiceDTO{ID: v.ID, Name: v.Name}
	})
	ok(c, http.StatusOK, ListVoicesResponse{
		Voices:         voices,
		DefaultVoiceID: h.defaultVoiceID,
	})
}
