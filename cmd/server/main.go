package main

import (
	"amitk/therapy-app/internal/api"
	"amitk/therapy-app/internal/config"
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository/mongo"
	"amitk/therapy-app/internal/service"
	"amitk/therapy-app/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// @title Therapy Practice API
// @version 1.0
// @description API for managing therapy programs, care episodes, milestones and intake.
// @contact.name API Support
// @contact.email support@example.com
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	log.Println("Starting Therapy App Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() { // Run index creation concurrently/in background
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureRelationshipIndexes(ctx, appDB.Collection("relationships"))
		mongo.EnsureEpisodeIndexes(ctx, appDB.Collection("episodes"))
		mongo.EnsureMilestoneTemplateIndexes(ctx, appDB.Collection("milestone_templates"))
		mongo.EnsureMilestoneIndexes(ctx, appDB.Collection("episode_milestones"))
		mongo.EnsureFormIndexes(ctx, appDB.Collection("first_session_forms"))
		mongo.EnsureTreatmentPlanIndexes(ctx, appDB.Collection("treatment_plans"))
		mongo.EnsureSessionIndexes(ctx, appDB.Collection("sessions"))
		mongo.EnsureExerciseIndexes(ctx, appDB.Collection("exercises"))
		mongo.EnsureUploadIndexes(ctx, appDB.Collection("uploads"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Storage ---
	log.Println("Initializing file storage service...")
	fileStorage, err := storage.NewS3Storage(cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize S3 storage: %v", err)
	}

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	relationshipRepo := mongo.NewMongoRelationshipRepository(appDB)
	episodeRepo := mongo.NewMongoEpisodeRepository(appDB)
	templateRepo := mongo.NewMongoMilestoneTemplateRepository(appDB)
	milestoneRepo := mongo.NewMongoMilestoneRepository(appDB)
	formRepo := mongo.NewMongoFormRepository(appDB)
	planRepo := mongo.NewMongoTreatmentPlanRepository(appDB)
	sessionRepo := mongo.NewMongoSessionRepository(appDB)
	exerciseRepo := mongo.NewMongoExerciseRepository(appDB)
	uploadRepo := mongo.NewMongoUploadRepository(appDB)
	txManager := mongo.NewTransactionManager(dbClient)

	// --- Seed Milestone Template Catalog ---
	log.Println("Seeding system milestone templates...")
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	templates := domain.DefaultMilestoneTemplates()
	for i := range templates {
		if err := templateRepo.UpsertByKey(seedCtx, &templates[i]); err != nil {
			log.Printf("ERROR: Failed to seed milestone template '%s': %v", templates[i].Key, err)
		}
	}
	cancelSeed()

	// --- Initialize Services ---
	log.Println("Initializing services...")
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	milestoneService := service.NewMilestoneService(milestoneRepo, templateRepo, episodeRepo, relationshipRepo, planRepo, userRepo, txManager)
	relationshipService := service.NewRelationshipService(relationshipRepo, userRepo, episodeRepo, milestoneService, txManager)
	episodeService := service.NewEpisodeService(episodeRepo)
	formService := service.NewFirstSessionFormService(formRepo, episodeRepo, relationshipRepo, userRepo, planRepo, sessionRepo, exerciseRepo, milestoneService, txManager)
	sessionService := service.NewSessionService(sessionRepo, episodeRepo)
	exerciseService := service.NewExerciseService(exerciseRepo, uploadRepo, fileStorage)

	// --- Initialize Gin Engine ---
	// gin.SetMode(gin.ReleaseMode) // Uncomment for production
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret,
		authService,
		relationshipService,
		episodeService,
		milestoneService,
		formService,
		sessionService,
		exerciseService,
	)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give in-flight requests five seconds to finish.
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
