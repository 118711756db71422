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
	ErrRelationshipNotFound     = errors.New("relationship not found")
	ErrRelationshipAccessDenied = errors.New("user does not have access to this relationship")
	ErrInvalidTransition        = errors.New("relationship is not in the required status for this operation")
	ErrNoAvailableTherapist     = errors.New("no therapist is currently accepting new patients for this discipline")
	ErrMeetingInPast            = errors.New("meeting time must be in the future")
)

// ProgramSuggestion is one selectable program offered to a patient.
type ProgramSuggestion struct {
	Discipline  domain.Discipline `json:"discipline"`
	ProgramName string            `json:"programName"`
	// Suggested is set when the patient's inviting therapist practices
	// this discipline.
	Suggested bool `json:"suggested"`
}

// TherapistPatientEntry is one row of the therapist dashboard.
type TherapistPatientEntry struct {
	Relationship domain.Relationship `json:"relationship"`
	PatientName  string              `json:"patientName"`
	PatientEmail string              `json:"patientEmail"`
	Episode      *domain.Episode     `json:"episode,omitempty"`
}

// TherapistDashboard groups a therapist's caseload by onboarding stage.
type TherapistDashboard struct {
	PendingScheduling []TherapistPatientEntry `json:"pendingScheduling"`
	Scheduled         []TherapistPatientEntry `json:"scheduled"`
	Active            []TherapistPatientEntry `json:"active"`
	Other             []TherapistPatientEntry `json:"other"`
}

// --- Service Interface ---

// RelationshipService owns the patient-therapist onboarding state machine.
type RelationshipService interface {
	// GetSuggestedPrograms lists the programs a patient can select, marking
	// the inviting therapist's discipline when there is one.
	GetSuggestedPrograms(ctx context.Context, patientID primitive.ObjectID) ([]ProgramSuggestion, error)
	// SelectPrograms creates one PENDING_PAYMENT relationship per selected
	// discipline, assigning the inviting therapist where the discipline
	// matches and an available therapist otherwise. Idempotent per
	// patient and therapist pair: re-selecting returns the existing
	// relationship unchanged.
	SelectPrograms(ctx context.Context, patientID primitive.ObjectID, disciplines []domain.Discipline) ([]domain.Relationship, error)
	// CompletePayment moves PENDING_PAYMENT to PENDING_SCHEDULING.
	CompletePayment(ctx context.Context, patientID, relationshipID primitive.ObjectID) (*domain.Relationship, error)
	// ScheduleFirstMeeting moves PENDING_SCHEDULING to
	// SCHEDULED_FIRST_MEETING, creating the relationship's episode and its
	// default milestones in the same transaction.
	ScheduleFirstMeeting(ctx context.Context, therapistID, relationshipID primitive.ObjectID, when time.Time) (*domain.Relationship, error)
	// RescheduleFirstMeeting rewrites the meeting time while still in
	// SCHEDULED_FIRST_MEETING, shifting the episode start date and every
	// milestone target date along with it.
	RescheduleFirstMeeting(ctx context.Context, therapistID, relationshipID primitive.ObjectID, when time.Time) (*domain.Relationship, error)
	// Pause, Resume and end-of-care transitions for an ACTIVE relationship.
	Pause(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error)
	Resume(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error)
	Complete(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error)
	Discharge(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error)
	GetPatientRelationships(ctx context.Context, patientID primitive.ObjectID) ([]domain.Relationship, error)
	GetRelationship(ctx context.Context, userID, relationshipID primitive.ObjectID) (*domain.Relationship, error)
	GetTherapistDashboard(ctx context.Context, therapistID primitive.ObjectID) (*TherapistDashboard, error)
}

// --- Service Implementation ---

type relationshipService struct {
	relationshipRepo repository.RelationshipRepository
	userRepo         repository.UserRepository
	episodeRepo      repository.EpisodeRepository
	milestoneService MilestoneService
	txManager        repository.TransactionManager
}

// NewRelationshipService creates a new instance of relationshipService.
func NewRelationshipService(
	relationshipRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	episodeRepo repository.EpisodeRepository,
	milestoneService MilestoneService,
	txManager repository.TransactionManager,
) RelationshipService {
	return &relationshipService{
		relationshipRepo: relationshipRepo,
		userRepo:         userRepo,
		episodeRepo:      episodeRepo,
		milestoneService: milestoneService,
		txManager:        txManager,
	}
}

// GetSuggestedPrograms lists selectable programs for a patient.
func (s *relationshipService) GetSuggestedPrograms(ctx context.Context, patientID primitive.ObjectID) ([]ProgramSuggestion, error) {
	patient, err := s.userRepo.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	var invitingDiscipline domain.Discipline
	if patient.InvitedByTherapistID != nil {
		if therapist, err := s.userRepo.GetByID(ctx, *patient.InvitedByTherapistID); err == nil {
			invitingDiscipline = therapist.Discipline
		}
	}

	suggestions := make([]ProgramSuggestion, 0, len(domain.AllDisciplines))
	for _, d := range domain.AllDisciplines {
		suggestions = append(suggestions, ProgramSuggestion{
			Discipline:  d,
			ProgramName: domain.DisciplineName(d),
			Suggested:   d == invitingDiscipline,
		})
	}
	return suggestions, nil
}

// SelectPrograms creates one relationship per chosen discipline.
func (s *relationshipService) SelectPrograms(ctx context.Context, patientID primitive.ObjectID, disciplines []domain.Discipline) ([]domain.Relationship, error) {
	if len(disciplines) == 0 {
		return nil, errors.New("at least one discipline must be selected")
	}

	patient, err := s.userRepo.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !patient.IsPatient() {
		return nil, errors.New("only patients can select programs")
	}

	var invitingTherapist *domain.User
	if patient.InvitedByTherapistID != nil {
		invitingTherapist, _ = s.userRepo.GetByID(ctx, *patient.InvitedByTherapistID)
	}

	var created []domain.Relationship
	for _, discipline := range disciplines {
		therapistID, isInviting, err := s.resolveTherapist(ctx, invitingTherapist, discipline)
		if err != nil {
			return created, err
		}

		rel := &domain.Relationship{
			PatientID:           patientID,
			TherapistID:         therapistID,
			Discipline:          discipline,
			Status:              domain.RelationshipPendingPayment,
			IsInvitingTherapist: isInviting,
		}

		id, err := s.relationshipRepo.Create(ctx, rel)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Re-selection is idempotent: the existing relationship with
				// this therapist is returned instead of a duplicate.
				existing, getErr := s.relationshipRepo.GetByPatientAndTherapist(ctx, patientID, therapistID)
				if getErr != nil {
					return created, getErr
				}
				created = append(created, *existing)
				continue
			}
			return created, err
		}
		rel.ID = id
		created = append(created, *rel)
	}

	return created, nil
}

// resolveTherapist prefers the inviting therapist for their own discipline
// and otherwise assigns by availability.
func (s *relationshipService) resolveTherapist(ctx context.Context, invitingTherapist *domain.User, discipline domain.Discipline) (primitive.ObjectID, bool, error) {
	if invitingTherapist != nil && invitingTherapist.Discipline == discipline {
		return invitingTherapist.ID, true, nil
	}

	therapist, err := s.userRepo.FindAvailableTherapist(ctx, discipline)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return primitive.NilObjectID, false, fmt.Errorf("%w: %s", ErrNoAvailableTherapist, discipline)
		}
		return primitive.NilObjectID, false, err
	}
	return therapist.ID, false, nil
}

// CompletePayment records the payment step for the patient's relationship.
func (s *relationshipService) CompletePayment(ctx context.Context, patientID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	rel, err := s.getOwnedByPatient(ctx, patientID, relationshipID)
	if err != nil {
		return nil, err
	}

	err = s.relationshipRepo.TransitionStatus(ctx, rel.ID, domain.RelationshipPendingPayment, domain.RelationshipPendingScheduling)
	if err != nil {
		if errors.Is(err, repository.ErrUpdateFailed) {
			return nil, fmt.Errorf("%w: expected %s, have %s", ErrInvalidTransition, domain.RelationshipPendingPayment, rel.Status)
		}
		return nil, err
	}

	return s.relationshipRepo.GetByID(ctx, rel.ID)
}

// ScheduleFirstMeeting books the first meeting and bootstraps the episode.
func (s *relationshipService) ScheduleFirstMeeting(ctx context.Context, therapistID, relationshipID primitive.ObjectID, when time.Time) (*domain.Relationship, error) {
	rel, err := s.getOwnedByTherapist(ctx, therapistID, relationshipID)
	if err != nil {
		return nil, err
	}
	if !when.After(time.Now()) {
		return nil, ErrMeetingInPast
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		err := s.relationshipRepo.ScheduleMeeting(txCtx, rel.ID, domain.RelationshipPendingScheduling, when)
		if err != nil {
			if errors.Is(err, repository.ErrUpdateFailed) {
				return fmt.Errorf("%w: expected %s, have %s", ErrInvalidTransition, domain.RelationshipPendingScheduling, rel.Status)
			}
			return err
		}

		// One episode per relationship; a leftover from a previous
		// scheduling attempt is reused rather than duplicated.
		episode, err := s.episodeRepo.GetByRelationshipID(txCtx, rel.ID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			relID := rel.ID
			episode = &domain.Episode{
				RelationshipID:  &relID,
				PatientID:       rel.PatientID,
				TherapistID:     rel.TherapistID,
				Status:          domain.EpisodeActive,
				StartDate:       when,
				ExpectedEndDate: when.AddDate(0, 0, domain.DefaultEpisodeDurationWeeks*7),
				DurationWeeks:   domain.DefaultEpisodeDurationWeeks,
				CurrentWeek:     1,
			}
			episodeID, err := s.episodeRepo.Create(txCtx, episode)
			if err != nil {
				return err
			}
			episode.ID = episodeID
		}

		_, err = s.milestoneService.Initialize(txCtx, episode.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.relationshipRepo.GetByID(ctx, rel.ID)
}

// RescheduleFirstMeeting moves the booked meeting and shifts the episode's
// schedule to the new date.
func (s *relationshipService) RescheduleFirstMeeting(ctx context.Context, therapistID, relationshipID primitive.ObjectID, when time.Time) (*domain.Relationship, error) {
	rel, err := s.getOwnedByTherapist(ctx, therapistID, relationshipID)
	if err != nil {
		return nil, err
	}
	if !when.After(time.Now()) {
		return nil, ErrMeetingInPast
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		err := s.relationshipRepo.UpdateScheduledAt(txCtx, rel.ID, domain.RelationshipScheduledMeeting, when)
		if err != nil {
			if errors.Is(err, repository.ErrUpdateFailed) {
				return fmt.Errorf("%w: expected %s, have %s", ErrInvalidTransition, domain.RelationshipScheduledMeeting, rel.Status)
			}
			return err
		}

		episode, err := s.episodeRepo.GetByRelationshipID(txCtx, rel.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}

		expectedEnd := when.AddDate(0, 0, episode.DurationWeeks*7)
		if err := s.episodeRepo.UpdateStartDate(txCtx, episode.ID, when, expectedEnd); err != nil {
			return err
		}
		return s.milestoneService.RecomputeTargetDates(txCtx, episode.ID, when)
	})
	if err != nil {
		return nil, err
	}

	return s.relationshipRepo.GetByID(ctx, rel.ID)
}

// Pause suspends an active relationship.
func (s *relationshipService) Pause(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	return s.transition(ctx, therapistID, relationshipID, domain.RelationshipActive, domain.RelationshipPaused)
}

// Resume reactivates a paused relationship.
func (s *relationshipService) Resume(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	return s.transition(ctx, therapistID, relationshipID, domain.RelationshipPaused, domain.RelationshipActive)
}

// Complete ends an active relationship as finished care.
func (s *relationshipService) Complete(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	return s.transition(ctx, therapistID, relationshipID, domain.RelationshipActive, domain.RelationshipCompleted)
}

// Discharge ends an active relationship by clinical discharge.
func (s *relationshipService) Discharge(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	return s.transition(ctx, therapistID, relationshipID, domain.RelationshipActive, domain.RelationshipDischarged)
}

func (s *relationshipService) transition(ctx context.Context, therapistID, relationshipID primitive.ObjectID, from, to domain.RelationshipStatus) (*domain.Relationship, error) {
	rel, err := s.getOwnedByTherapist(ctx, therapistID, relationshipID)
	if err != nil {
		return nil, err
	}

	err = s.relationshipRepo.TransitionStatus(ctx, rel.ID, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrUpdateFailed) {
			return nil, fmt.Errorf("%w: expected %s, have %s", ErrInvalidTransition, from, rel.Status)
		}
		return nil, err
	}

	return s.relationshipRepo.GetByID(ctx, rel.ID)
}

// GetPatientRelationships lists a patient's own relationships.
func (s *relationshipService) GetPatientRelationships(ctx context.Context, patientID primitive.ObjectID) ([]domain.Relationship, error) {
	return s.relationshipRepo.GetByPatientID(ctx, patientID)
}

// GetRelationship fetches one relationship, visible only to its two parties.
func (s *relationshipService) GetRelationship(ctx context.Context, userID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	rel, err := s.relationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRelationshipNotFound
		}
		return nil, err
	}
	if rel.PatientID != userID && rel.TherapistID != userID {
		return nil, ErrRelationshipAccessDenied
	}
	return rel, nil
}

// GetTherapistDashboard builds the caseload view grouped by stage.
func (s *relationshipService) GetTherapistDashboard(ctx context.Context, therapistID primitive.ObjectID) (*TherapistDashboard, error) {
	rels, err := s.relationshipRepo.GetByTherapistID(ctx, therapistID)
	if err != nil {
		return nil, err
	}

	dashboard := &TherapistDashboard{
		PendingScheduling: []TherapistPatientEntry{},
		Scheduled:         []TherapistPatientEntry{},
		Active:            []TherapistPatientEntry{},
		Other:             []TherapistPatientEntry{},
	}

	for i := range rels {
		rel := rels[i]

		entry := TherapistPatientEntry{Relationship: rel}
		if patient, err := s.userRepo.GetByID(ctx, rel.PatientID); err == nil {
			entry.PatientName = patient.Name
			entry.PatientEmail = patient.Email
		}
		if episode, err := s.episodeRepo.GetByRelationshipID(ctx, rel.ID); err == nil {
			entry.Episode = episode
		}

		switch rel.Status {
		case domain.RelationshipPendingScheduling:
			dashboard.PendingScheduling = append(dashboard.PendingScheduling, entry)
		case domain.RelationshipScheduledMeeting:
			dashboard.Scheduled = append(dashboard.Scheduled, entry)
		case domain.RelationshipActive, domain.RelationshipPaused:
			dashboard.Active = append(dashboard.Active, entry)
		default:
			dashboard.Other = append(dashboard.Other, entry)
		}
	}

	return dashboard, nil
}

func (s *relationshipService) getOwnedByPatient(ctx context.Context, patientID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	rel, err := s.relationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRelationshipNotFound
		}
		return nil, err
	}
	if rel.PatientID != patientID {
		return nil, ErrRelationshipAccessDenied
	}
	return rel, nil
}

func (s *relationshipService) getOwnedByTherapist(ctx context.Context, therapistID, relationshipID primitive.ObjectID) (*domain.Relationship, error) {
	rel, err := s.relationshipRepo.GetByID(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRelationshipNotFound
		}
		return nil, err
	}
	if rel.TherapistID != therapistID {
		return nil, ErrRelationshipAccessDenied
	}
	return rel, nil
}
