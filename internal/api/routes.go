package api

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	relationshipService service.RelationshipService,
	episodeService service.EpisodeService,
	milestoneService service.MilestoneService,
	formService service.FirstSessionFormService,
	sessionService service.SessionService,
	exerciseService service.ExerciseService,
) {

	authHandler := NewAuthHandler(authService)
	relationshipHandler := NewRelationshipHandler(relationshipService)
	milestoneHandler := NewMilestoneHandler(milestoneService, episodeService)
	formHandler := NewFormHandler(formService)
	episodeHandler := NewEpisodeHandler(episodeService, sessionService)
	exerciseHandler := NewExerciseHandler(exerciseService)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			roleRaw, _ := c.Get(ContextUserRoleKey)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": roleRaw})
		})

		// --- Patient Routes ---
		patientGroup := protected.Group("/patient")
		patientGroup.Use(RoleMiddleware(domain.RolePatient))
		{
			// Program selection and payment
			patientGroup.GET("/programs/suggestions", relationshipHandler.GetSuggestedPrograms)
			patientGroup.POST("/programs/select", relationshipHandler.SelectPrograms)
			patientGroup.POST("/relationships/:relationshipId/payment/complete", relationshipHandler.CompletePayment)
			patientGroup.GET("/relationships", relationshipHandler.GetMyRelationships)

			// Episodes and the aggregated timeline
			patientGroup.GET("/episodes", episodeHandler.GetMyEpisodes)
			patientGroup.GET("/timeline", milestoneHandler.GetMyTimeline)
		}

		// --- Shared (either party of the record) ---
		protected.GET("/relationships/:relationshipId", relationshipHandler.GetRelationship)
		protected.GET("/episodes/:episodeId", episodeHandler.GetEpisode)
		protected.GET("/episodes/:episodeId/milestones", milestoneHandler.GetEpisodeMilestones)
		protected.GET("/episodes/:episodeId/sessions", episodeHandler.GetEpisodeSessions)
		protected.GET("/exercises/:exerciseId", exerciseHandler.GetExercise)

		// --- Therapist Routes ---
		therapistGroup := protected.Group("/therapist")
		therapistGroup.Use(RoleMiddleware(domain.RoleTherapist))
		{
			therapistGroup.GET("/dashboard", relationshipHandler.GetDashboard)

			// Relationship lifecycle
			therapistGroup.POST("/relationships/:relationshipId/schedule", relationshipHandler.ScheduleFirstMeeting)
			therapistGroup.PUT("/relationships/:relationshipId/schedule", relationshipHandler.RescheduleFirstMeeting)
			therapistGroup.POST("/relationships/:relationshipId/pause", relationshipHandler.Pause)
			therapistGroup.POST("/relationships/:relationshipId/resume", relationshipHandler.Resume)
			therapistGroup.POST("/relationships/:relationshipId/complete", relationshipHandler.Complete)
			therapistGroup.POST("/relationships/:relationshipId/discharge", relationshipHandler.Discharge)

			// Episode management
			therapistGroup.PUT("/episodes/:episodeId/duration", episodeHandler.UpdateDuration)
			therapistGroup.POST("/episodes/:episodeId/sessions", episodeHandler.ScheduleSession)
			therapistGroup.POST("/sessions/:sessionId/complete", episodeHandler.CompleteSession)
			therapistGroup.POST("/sessions/:sessionId/cancel", episodeHandler.CancelSession)

			// Milestone management
			therapistGroup.POST("/episodes/:episodeId/milestones", milestoneHandler.CreateMilestone)
			therapistGroup.POST("/episodes/:episodeId/milestones/reset", milestoneHandler.ResetMilestones)
			therapistGroup.PUT("/milestones/:milestoneId", milestoneHandler.UpdateMilestone)
			therapistGroup.DELETE("/milestones/:milestoneId", milestoneHandler.DeleteMilestone)
			therapistGroup.POST("/milestones/:milestoneId/complete", milestoneHandler.CompleteMilestone)
			therapistGroup.POST("/milestones/:milestoneId/skip", milestoneHandler.SkipMilestone)

			// First-session form
			therapistGroup.POST("/episodes/:episodeId/form", formHandler.CreateForm)
			therapistGroup.GET("/episodes/:episodeId/form", formHandler.GetFormByEpisode)
			therapistGroup.PUT("/forms/:formId", formHandler.UpdateForm)
			therapistGroup.POST("/forms/:formId/complete", formHandler.CompleteForm)

			// Exercise library
			therapistGroup.POST("/exercises", exerciseHandler.CreateExercise)
			therapistGroup.GET("/exercises", exerciseHandler.GetMyExercises)
			therapistGroup.PUT("/exercises/:exerciseId", exerciseHandler.UpdateExercise)
			therapistGroup.DELETE("/exercises/:exerciseId", exerciseHandler.DeleteExercise)
			therapistGroup.POST("/exercises/:exerciseId/video/upload-url", exerciseHandler.RequestVideoUpload)
			therapistGroup.POST("/exercises/:exerciseId/video/confirm", exerciseHandler.ConfirmVideoUpload)
		}
	}
}
