package api

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/service"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RelationshipHandler holds the relationship service dependency.
type RelationshipHandler struct {
	relationshipService service.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(relationshipService service.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relationshipService: relationshipService}
}

// --- Request Structs ---

type SelectProgramsRequest struct {
	Disciplines []domain.Discipline `json:"disciplines" binding:"required,min=1,dive,oneof=PT OT ST MT"`
}

type ScheduleMeetingRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
}

// --- Handler Methods ---

// GetSuggestedPrograms godoc
// @Summary List the programs a patient can select
// @Tags Relationships
// @Produce json
// @Success 200 {array} service.ProgramSuggestion
// @Security BearerAuth
// @Router /programs/suggestions [get]
func (h *RelationshipHandler) GetSuggestedPrograms(c *gin.Context) {
	patientID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	suggestions, err := h.relationshipService.GetSuggestedPrograms(c.Request.Context(), patientID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

// SelectPrograms godoc
// @Summary Select one or more therapy programs
// @Description Creates a PENDING_PAYMENT relationship per selected discipline.
// @Tags Relationships
// @Accept json
// @Produce json
// @Param selection body SelectProgramsRequest true "Chosen disciplines"
// @Success 201 {array} domain.Relationship
// @Failure 409 {object} gin.H "Relationship already exists for a discipline"
// @Security BearerAuth
// @Router /programs/select [post]
func (h *RelationshipHandler) SelectPrograms(c *gin.Context) {
	patientID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req SelectProgramsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	created, err := h.relationshipService.SelectPrograms(c.Request.Context(), patientID, req.Disciplines)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// CompletePayment moves a patient's relationship past the payment gate.
func (h *RelationshipHandler) CompletePayment(c *gin.Context) {
	patientID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	relationshipID, ok := parseObjectIDParam(c, "relationshipId")
	if !ok {
		return
	}

	rel, err := h.relationshipService.CompletePayment(c.Request.Context(), patientID, relationshipID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// GetMyRelationships lists the authenticated patient's relationships.
func (h *RelationshipHandler) GetMyRelationships(c *gin.Context) {
	patientID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	rels, err := h.relationshipService.GetPatientRelationships(c.Request.Context(), patientID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rels)
}

// GetRelationship fetches one relationship for either party.
func (h *RelationshipHandler) GetRelationship(c *gin.Context) {
	userID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	relationshipID, ok := parseObjectIDParam(c, "relationshipId")
	if !ok {
		return
	}

	rel, err := h.relationshipService.GetRelationship(c.Request.Context(), userID, relationshipID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// ScheduleFirstMeeting godoc
// @Summary Book the first meeting for a relationship
// @Description Transitions PENDING_SCHEDULING to SCHEDULED_FIRST_MEETING and
// @Description creates the treatment episode with its default milestones.
// @Tags Relationships
// @Accept json
// @Produce json
// @Param relationshipId path string true "Relationship ID"
// @Param meeting body ScheduleMeetingRequest true "Meeting time"
// @Success 200 {object} domain.Relationship
// @Failure 409 {object} gin.H "Relationship not in PENDING_SCHEDULING"
// @Security BearerAuth
// @Router /therapist/relationships/{relationshipId}/schedule [post]
func (h *RelationshipHandler) ScheduleFirstMeeting(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	relationshipID, ok := parseObjectIDParam(c, "relationshipId")
	if !ok {
		return
	}

	var req ScheduleMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	rel, err := h.relationshipService.ScheduleFirstMeeting(c.Request.Context(), therapistID, relationshipID, req.ScheduledAt)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// RescheduleFirstMeeting moves a booked first meeting.
func (h *RelationshipHandler) RescheduleFirstMeeting(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	relationshipID, ok := parseObjectIDParam(c, "relationshipId")
	if !ok {
		return
	}

	var req ScheduleMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	rel, err := h.relationshipService.RescheduleFirstMeeting(c.Request.Context(), therapistID, relationshipID, req.ScheduledAt)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// Pause suspends an active relationship.
func (h *RelationshipHandler) Pause(c *gin.Context) {
	h.lifecycleTransition(c, h.relationshipService.Pause)
}

// Resume reactivates a paused relationship.
func (h *RelationshipHandler) Resume(c *gin.Context) {
	h.lifecycleTransition(c, h.relationshipService.Resume)
}

// Complete marks an active relationship's care as finished.
func (h *RelationshipHandler) Complete(c *gin.Context) {
	h.lifecycleTransition(c, h.relationshipService.Complete)
}

// Discharge ends an active relationship by clinical discharge.
func (h *RelationshipHandler) Discharge(c *gin.Context) {
	h.lifecycleTransition(c, h.relationshipService.Discharge)
}

func (h *RelationshipHandler) lifecycleTransition(c *gin.Context, fn func(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error)) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	relationshipID, ok := parseObjectIDParam(c, "relationshipId")
	if !ok {
		return
	}

	rel, err := fn(c.Request.Context(), therapistID, relationshipID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// GetDashboard returns the therapist's caseload grouped by stage.
func (h *RelationshipHandler) GetDashboard(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	dashboard, err := h.relationshipService.GetTherapistDashboard(c.Request.Context(), therapistID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *RelationshipHandler) mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRelationshipNotFound), errors.Is(err, service.ErrUserNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRelationshipAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoAvailableTherapist), errors.Is(err, service.ErrMeetingInPast):
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
