package api

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/service"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// FormHandler holds the first-session form service dependency.
type FormHandler struct {
	formService service.FirstSessionFormService
}

// NewFormHandler creates a new FormHandler.
func NewFormHandler(formService service.FirstSessionFormService) *FormHandler {
	return &FormHandler{formService: formService}
}

// UpdateFormRequest upserts individual sections; omitted sections are left
// unchanged.
type UpdateFormRequest struct {
	BasicData        *domain.BasicDataSection        `json:"basicData,omitempty"`
	PerformanceTests *domain.PerformanceTestsSection `json:"performanceTests,omitempty"`
	TherapyGoals     *domain.TherapyGoalsSection     `json:"therapyGoals,omitempty"`
	Onboarding       *domain.OnboardingSection       `json:"onboarding,omitempty"`
	InitialProgram   *domain.InitialProgramSection   `json:"initialProgram,omitempty"`
}

// CreateForm opens a DRAFT intake form for an episode.
func (h *FormHandler) CreateForm(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	form, err := h.formService.Create(c.Request.Context(), therapistID, episodeID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, form)
}

// GetFormByEpisode fetches the episode's intake form.
func (h *FormHandler) GetFormByEpisode(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	episodeID, ok := parseObjectIDParam(c, "episodeId")
	if !ok {
		return
	}

	form, err := h.formService.GetByEpisodeID(c.Request.Context(), therapistID, episodeID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// UpdateForm upserts the supplied sections.
func (h *FormHandler) UpdateForm(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	formID, ok := parseObjectIDParam(c, "formId")
	if !ok {
		return
	}

	var req UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	form, err := h.formService.Update(c.Request.Context(), therapistID, formID, service.UpdateFormInput{
		BasicData:        req.BasicData,
		PerformanceTests: req.PerformanceTests,
		TherapyGoals:     req.TherapyGoals,
		Onboarding:       req.Onboarding,
		InitialProgram:   req.InitialProgram,
	})
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// CompleteForm godoc
// @Summary Complete the intake form
// @Description Validates the form and atomically applies the completion side
// @Description effects: goals copy, relationship activation, initial plan,
// @Description first session and baseline milestone completion.
// @Tags Forms
// @Produce json
// @Param formId path string true "Form ID"
// @Success 200 {object} domain.FirstSessionForm
// @Failure 409 {object} gin.H "Form already completed"
// @Failure 422 {object} gin.H "Required sections missing"
// @Security BearerAuth
// @Router /therapist/forms/{formId}/complete [post]
func (h *FormHandler) CompleteForm(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	formID, ok := parseObjectIDParam(c, "formId")
	if !ok {
		return
	}

	form, err := h.formService.Complete(c.Request.Context(), therapistID, formID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (h *FormHandler) mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFormNotFound), errors.Is(err, service.ErrEpisodeNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrFormAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrFormExists), errors.Is(err, service.ErrFormAlreadyCompleted), errors.Is(err, service.ErrInvalidTransition):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrFormIncomplete):
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
