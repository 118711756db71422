package api

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/service"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// EpisodeHandler holds the episode and session service dependencies.
type EpisodeHandler struct {
	episodeService service.EpisodeService
	sessionService service.SessionService
}

// NewEpisodeHandler creates a new EpisodeHandler.
func NewEpisodeHandler(episodeService service.EpisodeService, sessionService service.SessionService) *EpisodeHandler {
	return &EpisodeHandler{
		episodeService: episodeService,
		sessionService: sessionService,
	}
}

// --- Request Structs ---

type UpdateDurationRequest struct {
	DurationWeeks int `json:"durationWeeks" binding:"required,min=1"`
}

type ScheduleSessionRequest struct {
	Type        domain.SessionType `json:"type" binding:"required,oneof=VIDEO IN_PERSON"`
	ScheduledAt time.Time          `json:"scheduledAt" binding:"required"`
}

type CompleteSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// --- Handler Methods ---

// GetEpisode fetches one episode for either party.
func (h *EpisodeHandler) GetEpisode(c *gin.Context) {
	userID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	episode, err := h.episodeService.GetEpisode(c.Request.Context(), userID, episodeID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, episode)
}

// GetMyEpisodes lists the authenticated patient's episodes.
func (h *EpisodeHandler) GetMyEpisodes(c *gin.Context) {
	patientID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	episodes, err := h.episodeService.GetPatientEpisodes(c.Request.Context(), patientID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, episodes)
}

// UpdateDuration changes the episode's program length.
func (h *EpisodeHandler) UpdateDuration(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	var req UpdateDurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	episode, err := h.episodeService.UpdateDurationWeeks(c.Request.Context(), therapistID, episodeID, req.DurationWeeks)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, episode)
}

// GetEpisodeSessions lists the episode's visits.
func (h *EpisodeHandler) GetEpisodeSessions(c *gin.Context) {
	userID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	sessions, err := h.sessionService.GetEpisodeSessions(c.Request.Context(), userID, episodeID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// ScheduleSession books an additional visit in the episode.
func (h *EpisodeHandler) ScheduleSession(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	var req ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	session, err := h.sessionService.Schedule(c.Request.Context(), therapistID, episodeID, req.Type, req.ScheduledAt)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// CompleteSession marks a visit as held.
func (h *EpisodeHandler) CompleteSession(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	sessionID, ok := parseObjectIDParam(c, "sessionId")
	if !ok {
		return
	}

	// Notes are optional.
	var req CompleteSessionRequest
	_ = c.ShouldBindJSON(&req)

	session, err := h.sessionService.Complete(c.Request.Context(), therapistID, sessionID, req.Notes)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// CancelSession voids a scheduled visit.
func (h *EpisodeHandler) CancelSession(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	sessionID, ok := parseObjectIDParam(c, "sessionId")
	if !ok {
		return
	}

	session, err := h.sessionService.Cancel(c.Request.Context(), therapistID, sessionID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *EpisodeHandler) mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEpisodeNotFound), errors.Is(err, service.ErrSessionNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEpisodeAccessDenied), errors.Is(err, service.ErrSessionAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSessionNotScheduled):
		abortWithError(c, http.StatusConflict, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
