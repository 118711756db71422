package service

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrFormNotFound         = errors.New("first session form not found")
	ErrFormExists           = errors.New("episode already has a first session form")
	ErrFormAlreadyCompleted = errors.New("first session form is already completed")
	ErrFormAccessDenied     = errors.New("user does not have access to this form")
	ErrFormIncomplete       = errors.New("form is missing required sections")
)

// UpdateFormInput carries section upserts; nil sections are left unchanged.
type UpdateFormInput struct {
	BasicData        *domain.BasicDataSection
	PerformanceTests *domain.PerformanceTestsSection
	TherapyGoals     *domain.TherapyGoalsSection
	Onboarding       *domain.OnboardingSection
	InitialProgram   *domain.InitialProgramSection
}

// --- Service Interface ---

// FirstSessionFormService owns the intake questionnaire that gates an
// episode's activation.
type FirstSessionFormService interface {
	// Create opens a DRAFT form for the episode. One per episode.
	Create(ctx context.Context, therapistID, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error)
	GetByID(ctx context.Context, therapistID, formID primitive.ObjectID) (*domain.FirstSessionForm, error)
	GetByEpisodeID(ctx context.Context, therapistID, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error)
	// Update upserts sections independently while the form is DRAFT. On a
	// COMPLETED form only the therapy-goals section may change, and the
	// edit propagates to the episode's goals in the same transaction.
	Update(ctx context.Context, therapistID, formID primitive.ObjectID, input UpdateFormInput) (*domain.FirstSessionForm, error)
	// Complete validates the form and runs the completion side effects
	// atomically: freeze the form, copy goals to the episode, activate the
	// relationship and enroll the patient, materialize the initial
	// treatment plan, schedule the first session, and complete the
	// episode's baseline-assessment milestone.
	Complete(ctx context.Context, therapistID, formID primitive.ObjectID) (*domain.FirstSessionForm, error)
}

// --- Service Implementation ---

type firstSessionFormService struct {
	formRepo         repository.FirstSessionFormRepository
	episodeRepo      repository.EpisodeRepository
	relationshipRepo repository.RelationshipRepository
	userRepo         repository.UserRepository
	planRepo         repository.TreatmentPlanRepository
	sessionRepo      repository.SessionRepository
	exerciseRepo     repository.ExerciseRepository
	milestoneService MilestoneService
	txManager        repository.TransactionManager
}

// NewFirstSessionFormService creates a new instance of firstSessionFormService.
func NewFirstSessionFormService(
	formRepo repository.FirstSessionFormRepository,
	episodeRepo repository.EpisodeRepository,
	relationshipRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	planRepo repository.TreatmentPlanRepository,
	sessionRepo repository.SessionRepository,
	exerciseRepo repository.ExerciseRepository,
	milestoneService MilestoneService,
	txManager repository.TransactionManager,
) FirstSessionFormService {
	return &firstSessionFormService{
		formRepo:         formRepo,
		episodeRepo:      episodeRepo,
		relationshipRepo: relationshipRepo,
		userRepo:         userRepo,
		planRepo:         planRepo,
		sessionRepo:      sessionRepo,
		exerciseRepo:     exerciseRepo,
		milestoneService: milestoneService,
		txManager:        txManager,
	}
}

// Create opens the episode's intake form.
func (s *firstSessionFormService) Create(ctx context.Context, therapistID, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error) {
	episode, err := s.getOwnedEpisode(ctx, therapistID, episodeID)
	if err != nil {
		return nil, err
	}

	form := &domain.FirstSessionForm{
		EpisodeID: episode.ID,
		Status:    domain.FormDraft,
	}

	id, err := s.formRepo.Create(ctx, form)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrFormExists
		}
		return nil, err
	}
	form.ID = id
	return form, nil
}

// GetByID fetches one form, scoped to the episode's therapist.
func (s *firstSessionFormService) GetByID(ctx context.Context, therapistID, formID primitive.ObjectID) (*domain.FirstSessionForm, error) {
	form, _, err := s.getOwnedForm(ctx, therapistID, formID)
	return form, err
}

// GetByEpisodeID fetches the episode's form.
func (s *firstSessionFormService) GetByEpisodeID(ctx context.Context, therapistID, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error) {
	if _, err := s.getOwnedEpisode(ctx, therapistID, episodeID); err != nil {
		return nil, err
	}

	form, err := s.formRepo.GetByEpisodeID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return form, nil
}

// Update upserts the supplied sections.
func (s *firstSessionFormService) Update(ctx context.Context, therapistID, formID primitive.ObjectID, input UpdateFormInput) (*domain.FirstSessionForm, error) {
	form, episode, err := s.getOwnedForm(ctx, therapistID, formID)
	if err != nil {
		return nil, err
	}

	if form.Status == domain.FormCompleted {
		return s.updateCompletedForm(ctx, form, episode, input)
	}

	if input.BasicData != nil {
		form.BasicData = input.BasicData
	}
	if input.PerformanceTests != nil {
		form.PerformanceTests = input.PerformanceTests
	}
	if input.TherapyGoals != nil {
		form.TherapyGoals = input.TherapyGoals
	}
	if input.Onboarding != nil {
		form.Onboarding = input.Onboarding
	}
	if input.InitialProgram != nil {
		form.InitialProgram = input.InitialProgram
	}

	if err := s.formRepo.Update(ctx, form); err != nil {
		return nil, err
	}
	return form, nil
}

// updateCompletedForm permits only goal edits after completion and keeps the
// episode's goals copy in sync.
func (s *firstSessionFormService) updateCompletedForm(ctx context.Context, form *domain.FirstSessionForm, episode *domain.Episode, input UpdateFormInput) (*domain.FirstSessionForm, error) {
	if input.BasicData != nil || input.PerformanceTests != nil || input.Onboarding != nil || input.InitialProgram != nil {
		return nil, ErrFormAlreadyCompleted
	}
	if input.TherapyGoals == nil {
		return form, nil
	}

	form.TherapyGoals = input.TherapyGoals

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.formRepo.Update(txCtx, form); err != nil {
			return err
		}
		return s.episodeRepo.UpdateGoals(txCtx, episode.ID, &domain.GoalsPayload{
			Goals:            input.TherapyGoals.Goals,
			ExpectedOutcomes: input.TherapyGoals.ExpectedOutcomes,
		})
	})
	if err != nil {
		return nil, err
	}
	return form, nil
}

// Complete validates and freezes the form and applies every completion side
// effect in a single transaction.
func (s *firstSessionFormService) Complete(ctx context.Context, therapistID, formID primitive.ObjectID) (*domain.FirstSessionForm, error) {
	form, episode, err := s.getOwnedForm(ctx, therapistID, formID)
	if err != nil {
		return nil, err
	}
	if form.Status == domain.FormCompleted {
		return nil, ErrFormAlreadyCompleted
	}
	if err := s.validateForCompletion(ctx, form); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	form.Status = domain.FormCompleted
	form.CompletedAt = &now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.formRepo.Update(txCtx, form); err != nil {
			return err
		}

		if err := s.episodeRepo.UpdateGoals(txCtx, episode.ID, &domain.GoalsPayload{
			Goals:            form.TherapyGoals.Goals,
			ExpectedOutcomes: form.TherapyGoals.ExpectedOutcomes,
		}); err != nil {
			return err
		}

		if err := s.activateRelationship(txCtx, episode); err != nil {
			return err
		}

		if err := s.materializeInitialPlan(txCtx, form, episode); err != nil {
			return err
		}

		if err := s.scheduleFirstSession(txCtx, episode); err != nil {
			return err
		}

		// The baseline milestone may be missing when the episode predates
		// milestone generation; Initialize is idempotent either way.
		if _, err := s.milestoneService.Initialize(txCtx, episode.ID); err != nil {
			return err
		}
		_, err := s.milestoneService.CompleteBaselineAssessment(txCtx, episode.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return form, nil
}

// validateForCompletion enforces the intake gate: basic data, at least one
// goal and at least one selected exercise, all exercises resolvable.
func (s *firstSessionFormService) validateForCompletion(ctx context.Context, form *domain.FirstSessionForm) error {
	if form.BasicData == nil {
		return fmt.Errorf("%w: basicData", ErrFormIncomplete)
	}
	if form.TherapyGoals == nil || len(form.TherapyGoals.Goals) == 0 {
		return fmt.Errorf("%w: at least one therapy goal", ErrFormIncomplete)
	}
	if form.InitialProgram == nil || len(form.InitialProgram.Exercises) == 0 {
		return fmt.Errorf("%w: at least one initial program exercise", ErrFormIncomplete)
	}

	ids := make([]primitive.ObjectID, 0, len(form.InitialProgram.Exercises))
	for _, selected := range form.InitialProgram.Exercises {
		ids = append(ids, selected.ExerciseID)
	}
	exercises, err := s.exerciseRepo.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(exercises) != len(ids) {
		return fmt.Errorf("%w: initial program references unknown exercises", ErrFormIncomplete)
	}
	return nil
}

// activateRelationship moves the owning relationship to ACTIVE and marks the
// patient enrolled. Already-active relationships are left alone.
func (s *firstSessionFormService) activateRelationship(ctx context.Context, episode *domain.Episode) error {
	if episode.RelationshipID == nil {
		return nil
	}

	rel, err := s.relationshipRepo.GetByID(ctx, *episode.RelationshipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	switch rel.Status {
	case domain.RelationshipScheduledMeeting, domain.RelationshipPendingScheduling:
		if err := s.relationshipRepo.TransitionStatus(ctx, rel.ID, rel.Status, domain.RelationshipActive); err != nil {
			return err
		}
	case domain.RelationshipActive, domain.RelationshipPaused:
		// Nothing to transition.
	default:
		return fmt.Errorf("%w: cannot activate relationship in status %s", ErrInvalidTransition, rel.Status)
	}

	return s.userRepo.SetEnrollmentStatus(ctx, rel.PatientID, domain.EnrollmentEnrolled)
}

// materializeInitialPlan turns the form's exercise selection into the
// episode's first active treatment plan, filling per-exercise defaults from
// the library where the form left overrides empty.
func (s *firstSessionFormService) materializeInitialPlan(ctx context.Context, form *domain.FirstSessionForm, episode *domain.Episode) error {
	ids := make([]primitive.ObjectID, 0, len(form.InitialProgram.Exercises))
	for _, selected := range form.InitialProgram.Exercises {
		ids = append(ids, selected.ExerciseID)
	}
	library, err := s.exerciseRepo.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	defaults := make(map[primitive.ObjectID]*domain.Exercise, len(library))
	for i := range library {
		defaults[library[i].ID] = &library[i]
	}

	planExercises := make([]domain.PlanExercise, 0, len(form.InitialProgram.Exercises))
	for _, selected := range form.InitialProgram.Exercises {
		pe := domain.PlanExercise{
			ExerciseID: selected.ExerciseID,
			Order:      selected.Order,
			Sets:       selected.CustomSets,
			Reps:       selected.CustomReps,
			Duration:   selected.CustomDuration,
			Notes:      selected.Notes,
		}
		if ex, ok := defaults[selected.ExerciseID]; ok {
			if pe.Sets == 0 {
				pe.Sets = ex.DefaultSets
			}
			if pe.Reps == 0 {
				pe.Reps = ex.DefaultReps
			}
		}
		planExercises = append(planExercises, pe)
	}

	plan := &domain.TreatmentPlan{
		EpisodeID:   episode.ID,
		PatientID:   episode.PatientID,
		TherapistID: episode.TherapistID,
		Name:        "Initial Program",
		IsActive:    true,
		Exercises:   planExercises,
	}
	_, err = s.planRepo.Create(ctx, plan)
	return err
}

// scheduleFirstSession creates the first concrete visit. The intake meeting
// itself is that visit, so its scheduled time is the booked meeting time
// when known and the episode start otherwise.
func (s *firstSessionFormService) scheduleFirstSession(ctx context.Context, episode *domain.Episode) error {
	scheduledAt := episode.StartDate
	if episode.RelationshipID != nil {
		if rel, err := s.relationshipRepo.GetByID(ctx, *episode.RelationshipID); err == nil && rel.ScheduledAt != nil {
			scheduledAt = *rel.ScheduledAt
		}
	}

	session := &domain.Session{
		EpisodeID:   episode.ID,
		PatientID:   episode.PatientID,
		TherapistID: episode.TherapistID,
		Type:        domain.SessionInPerson,
		Status:      domain.SessionScheduled,
		ScheduledAt: scheduledAt,
	}
	_, err := s.sessionRepo.Create(ctx, session)
	return err
}

func (s *firstSessionFormService) getOwnedEpisode(ctx context.Context, therapistID, episodeID primitive.ObjectID) (*domain.Episode, error) {
	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.TherapistID != therapistID {
		return nil, ErrFormAccessDenied
	}
	return episode, nil
}

func (s *firstSessionFormService) getOwnedForm(ctx context.Context, therapistID, formID primitive.ObjectID) (*domain.FirstSessionForm, *domain.Episode, error) {
	form, err := s.formRepo.GetByID(ctx, formID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrFormNotFound
		}
		return nil, nil, err
	}

	episode, err := s.episodeRepo.GetByID(ctx, form.EpisodeID)
	if err != nil {
		return nil, nil, err
	}
	if episode.TherapistID != therapistID {
		return nil, nil, ErrFormAccessDenied
	}
	return form, episode, nil
}
