package api

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/service"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MilestoneHandler holds the milestone service dependency.
type MilestoneHandler struct {
	milestoneService service.MilestoneService
	episodeService   service.EpisodeService
}

// NewMilestoneHandler creates a new MilestoneHandler.
func NewMilestoneHandler(milestoneService service.MilestoneService, episodeService service.EpisodeService) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneService: milestoneService,
		episodeService:   episodeService,
	}
}

// --- Request Structs ---

type CreateMilestoneRequest struct {
	Type        domain.MilestoneType `json:"type" binding:"required,oneof=BASELINE_ASSESSMENT CHECKIN MIDPOINT_ASSESSMENT PROGRAM_COMPLETION"`
	Name        domain.LocalizedText `json:"name" binding:"required"`
	Description domain.LocalizedText `json:"description"`
	TargetWeek  int                  `json:"targetWeek" binding:"required,min=1"`
	TargetDate  *time.Time           `json:"targetDate,omitempty"`
	TriggerType domain.TriggerType   `json:"triggerType" binding:"required,oneof=FORM_COMPLETED VISIT_COMPLETED MANUAL"`
	TriggerConfig *domain.TriggerConfig `json:"triggerConfig,omitempty"`
	OrderIndex    *int                  `json:"orderIndex,omitempty"`
}

type UpdateMilestoneRequest struct {
	Name          *domain.LocalizedText `json:"name,omitempty"`
	Description   *domain.LocalizedText `json:"description,omitempty"`
	TargetWeek    *int                  `json:"targetWeek,omitempty" binding:"omitempty,min=1"`
	TargetDate    *time.Time            `json:"targetDate,omitempty"`
	TriggerType   *domain.TriggerType   `json:"triggerType,omitempty" binding:"omitempty,oneof=FORM_COMPLETED VISIT_COMPLETED MANUAL"`
	TriggerConfig *domain.TriggerConfig `json:"triggerConfig,omitempty"`
	OrderIndex    *int                  `json:"orderIndex,omitempty"`
}

type CompleteMilestoneRequest struct {
	LinkedSessionID string `json:"linkedSessionId,omitempty"`
}

// --- Handler Methods ---

// GetEpisodeMilestones lists an episode's milestones, scoped to its parties.
func (h *MilestoneHandler) GetEpisodeMilestones(c *gin.Context) {
	userID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	// Visibility piggybacks on the episode read's access check.
	if _, err := h.episodeService.GetEpisode(c.Request.Context(), userID, episodeID); err != nil {
		h.mapServiceError(c, err)
		return
	}

	milestones, err := h.milestoneService.GetEpisodeMilestones(c.Request.Context(), episodeID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestones)
}

// CreateMilestone adds a manual milestone to an episode.
func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}
	if _, err := h.episodeService.GetEpisode(c.Request.Context(), therapistID, episodeID); err != nil {
		h.mapServiceError(c, err)
		return
	}

	var req CreateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	milestone, err := h.milestoneService.CreateMilestone(c.Request.Context(), episodeID, service.CreateMilestoneInput{
		Type:          req.Type,
		Name:          req.Name,
		Description:   req.Description,
		TargetWeek:    req.TargetWeek,
		TargetDate:    req.TargetDate,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		OrderIndex:    req.OrderIndex,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, milestone)
}

// UpdateMilestone applies partial edits to a milestone.
func (h *MilestoneHandler) UpdateMilestone(c *gin.Context) {
	milestoneID, ok := parseObjectIDParam(c, "milestoneId")
	if !ok {
		return
	}

	var req UpdateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	milestone, err := h.milestoneService.UpdateMilestone(c.Request.Context(), milestoneID, service.UpdateMilestoneInput{
		Name:          req.Name,
		Description:   req.Description,
		TargetWeek:    req.TargetWeek,
		TargetDate:    req.TargetDate,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		OrderIndex:    req.OrderIndex,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

// DeleteMilestone removes a milestone.
func (h *MilestoneHandler) DeleteMilestone(c *gin.Context) {
	milestoneID, ok := parseObjectIDParam(c, "milestoneId")
	if !ok {
		return
	}

	if err := h.milestoneService.DeleteMilestone(c.Request.Context(), milestoneID); err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CompleteMilestone marks a milestone COMPLETED, optionally linking a session.
func (h *MilestoneHandler) CompleteMilestone(c *gin.Context) {
	milestoneID, ok := parseObjectIDParam(c, "milestoneId")
	if !ok {
		return
	}

	// Body is optional for a plain completion.
	var req CompleteMilestoneRequest
	_ = c.ShouldBindJSON(&req)

	var linkedSessionID *primitive.ObjectID
	if req.LinkedSessionID != "" {
		id, err := primitive.ObjectIDFromHex(req.LinkedSessionID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid linkedSessionId format")
			return
		}
		linkedSessionID = &id
	}

	milestone, err := h.milestoneService.Complete(c.Request.Context(), milestoneID, linkedSessionID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

// SkipMilestone marks a milestone SKIPPED.
func (h *MilestoneHandler) SkipMilestone(c *gin.Context) {
	milestoneID, ok := parseObjectIDParam(c, "milestoneId")
	if !ok {
		return
	}

	milestone, err := h.milestoneService.Skip(c.Request.Context(), milestoneID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

// ResetMilestones regenerates the episode's milestone set from templates.
func (h *MilestoneHandler) ResetMilestones(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}
	if _, err := h.episodeService.GetEpisode(c.Request.Context(), therapistID, episodeID); err != nil {
		h.mapServiceError(c, err)
		return
	}

	milestones, err := h.milestoneService.ResetToDefaults(c.Request.Context(), episodeID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestones)
}

// GetMyTimeline godoc
// @Summary Patient timeline across active and paused episodes
// @Description Flattens milestones and program summaries over every episode
// @Description the patient is enrolled in, ordered by week then target date.
// @Tags Timeline
// @Produce json
// @Success 200 {object} service.Timeline
// @Security BearerAuth
// @Router /patient/timeline [get]
func (h *MilestoneHandler) GetMyTimeline(c *gin.Context) {
	patientID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	timeline, err := h.milestoneService.GetPatientTimeline(c.Request.Context(), patientID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, timeline)
}

func (h *MilestoneHandler) mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEpisodeNotFound), errors.Is(err, service.ErrMilestoneNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEpisodeAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
