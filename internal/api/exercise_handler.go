package api

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/service"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ExerciseHandler holds the exercise service dependency.
type ExerciseHandler struct {
	exerciseService service.ExerciseService
}

// NewExerciseHandler creates a new ExerciseHandler.
func NewExerciseHandler(exerciseService service.ExerciseService) *ExerciseHandler {
	return &ExerciseHandler{exerciseService: exerciseService}
}

// --- Request Structs ---

type ExerciseRequest struct {
	Name        domain.LocalizedText `json:"name" binding:"required"`
	Description domain.LocalizedText `json:"description"`
	Discipline  domain.Discipline    `json:"discipline,omitempty" binding:"omitempty,oneof=PT OT ST MT"`
	BodyRegion  string               `json:"bodyRegion,omitempty"`
	Difficulty  string               `json:"difficulty,omitempty"`
	DefaultSets int                  `json:"defaultSets,omitempty" binding:"omitempty,min=0"`
	DefaultReps int                  `json:"defaultReps,omitempty" binding:"omitempty,min=0"`
}

type VideoUploadRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

type VideoConfirmRequest struct {
	ObjectKey   string `json:"objectKey" binding:"required"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
}

func (r ExerciseRequest) toInput() service.ExerciseInput {
	return service.ExerciseInput{
		Name:        r.Name,
		Description: r.Description,
		Discipline:  r.Discipline,
		BodyRegion:  r.BodyRegion,
		Difficulty:  r.Difficulty,
		DefaultSets: r.DefaultSets,
		DefaultReps: r.DefaultReps,
	}
}

// --- Handler Methods ---

// CreateExercise adds a new exercise to the therapist's library.
func (h *ExerciseHandler) CreateExercise(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req ExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	exercise, err := h.exerciseService.CreateExercise(c.Request.Context(), therapistID, req.toInput())
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exercise)
}

// GetExercise fetches an exercise with a presigned video URL when available.
func (h *ExerciseHandler) GetExercise(c *gin.Context) {
	exerciseID, ok := parseObjectIDParam(c, "exerciseId")
	if !ok {
		return
	}

	exercise, err := h.exerciseService.GetExercise(c.Request.Context(), exerciseID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, exercise)
}

// GetMyExercises lists the therapist's exercise library.
func (h *ExerciseHandler) GetMyExercises(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	exercises, err := h.exerciseService.GetTherapistExercises(c.Request.Context(), therapistID)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, exercises)
}

// UpdateExercise rewrites an exercise's authorable fields.
func (h *ExerciseHandler) UpdateExercise(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	exerciseID, ok := parseObjectIDParam(c, "exerciseId")
	if !ok {
		return
	}

	var req ExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	exercise, err := h.exerciseService.UpdateExercise(c.Request.Context(), therapistID, exerciseID, req.toInput())
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, exercise)
}

// DeleteExercise removes an exercise and its video object.
func (h *ExerciseHandler) DeleteExercise(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	exerciseID, ok := parseObjectIDParam(c, "exerciseId")
	if !ok {
		return
	}

	if err := h.exerciseService.DeleteExercise(c.Request.Context(), therapistID, exerciseID); err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestVideoUpload issues a presigned PUT URL for a demo video.
func (h *ExerciseHandler) RequestVideoUpload(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	exerciseID, ok := parseObjectIDParam(c, "exerciseId")
	if !ok {
		return
	}

	var req VideoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	ticket, err := h.exerciseService.RequestVideoUpload(c.Request.Context(), therapistID, exerciseID, req.FileName, req.ContentType)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// ConfirmVideoUpload attaches the uploaded object to the exercise.
func (h *ExerciseHandler) ConfirmVideoUpload(c *gin.Context) {
	therapistID, err := getUserObjectIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	exerciseID, ok := parseObjectIDParam(c, "exerciseId")
	if !ok {
		return
	}

	var req VideoConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	exercise, err := h.exerciseService.ConfirmVideoUpload(c.Request.Context(), therapistID, exerciseID, req.ObjectKey, req.FileName, req.ContentType, req.FileSize)
	if err != nil {
		h.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, exercise)
}

func (h *ExerciseHandler) mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExerciseNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrExerciseAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrValidationFailed):
		abortWithError(c, http.StatusBadRequest, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
