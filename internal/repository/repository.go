package repository

import (
	"amitk/therapy-app/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrConflict     = RepositoryError("conflict") // Unique constraint violated
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// TransactionManager runs a function inside a single storage transaction.
// Compound operations (state transition + dependent entity creation, intake
// completion side effects, milestone reset) must commit all writes or none.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	// FindAvailableTherapist returns the longest-registered therapist of the
	// given discipline who is accepting new patients, or ErrNotFound.
	FindAvailableTherapist(ctx context.Context, discipline domain.Discipline) (*domain.User, error)
	SetEnrollmentStatus(ctx context.Context, patientID primitive.ObjectID, status domain.EnrollmentStatus) error
}

// RelationshipRepository defines the interface for patient-therapist
// relationship data. Status transitions are guarded compare-and-set
// operations: the write only applies when the stored status still matches
// the required precondition, otherwise ErrUpdateFailed is returned.
type RelationshipRepository interface {
	Create(ctx context.Context, rel *domain.Relationship) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Relationship, error)
	GetByPatientAndTherapist(ctx context.Context, patientID, therapistID primitive.ObjectID) (*domain.Relationship, error)
	GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.Relationship, error)
	GetByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Relationship, error)
	// TransitionStatus moves the relationship from one status to another.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to domain.RelationshipStatus) error
	// ScheduleMeeting sets SCHEDULED_FIRST_MEETING plus the meeting time in
	// one guarded write (required current status: from).
	ScheduleMeeting(ctx context.Context, id primitive.ObjectID, from domain.RelationshipStatus, when time.Time) error
	// UpdateScheduledAt rewrites the meeting time without touching status;
	// guarded on the relationship currently being in requiredStatus.
	UpdateScheduledAt(ctx context.Context, id primitive.ObjectID, requiredStatus domain.RelationshipStatus, when time.Time) error
}

// EpisodeRepository defines the interface for treatment-program episodes.
type EpisodeRepository interface {
	Create(ctx context.Context, episode *domain.Episode) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Episode, error)
	GetByRelationshipID(ctx context.Context, relationshipID primitive.ObjectID) (*domain.Episode, error)
	// GetByPatientID returns the patient's episodes limited to the given
	// statuses (all statuses when none are supplied).
	GetByPatientID(ctx context.Context, patientID primitive.ObjectID, statuses ...domain.EpisodeStatus) ([]domain.Episode, error)
	UpdateGoals(ctx context.Context, id primitive.ObjectID, goals *domain.GoalsPayload) error
	UpdateStartDate(ctx context.Context, id primitive.ObjectID, startDate, expectedEndDate time.Time) error
	UpdateDurationWeeks(ctx context.Context, id primitive.ObjectID, durationWeeks int, expectedEndDate time.Time) error
}

// MilestoneTemplateRepository provides the read-mostly template catalog.
type MilestoneTemplateRepository interface {
	// UpsertByKey inserts or refreshes a system template; used at startup.
	UpsertByKey(ctx context.Context, template *domain.MilestoneTemplate) error
	// GetSystemDefaults returns the default templates applicable to the
	// given discipline (templates with no discipline scope always match),
	// ordered by default week ascending.
	GetSystemDefaults(ctx context.Context, discipline *domain.Discipline) ([]domain.MilestoneTemplate, error)
}

// MilestoneRepository defines the interface for episode milestone data.
type MilestoneRepository interface {
	Create(ctx context.Context, milestone *domain.EpisodeMilestone) (primitive.ObjectID, error)
	// CreateMany inserts a generated batch. The unique index on
	// (episodeId, templateId, targetWeek) turns a concurrent double
	// generation into ErrConflict instead of duplicate rows.
	CreateMany(ctx context.Context, milestones []domain.EpisodeMilestone) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.EpisodeMilestone, error)
	// GetByEpisodeID returns milestones sorted by target week, then order index.
	GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error)
	CountByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (int64, error)
	// FindFirstPending returns the earliest PENDING milestone of the given
	// type for the episode, or ErrNotFound.
	FindFirstPending(ctx context.Context, episodeID primitive.ObjectID, milestoneType domain.MilestoneType) (*domain.EpisodeMilestone, error)
	Update(ctx context.Context, milestone *domain.EpisodeMilestone) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) error
}

// FirstSessionFormRepository defines the interface for intake form data.
type FirstSessionFormRepository interface {
	// Create inserts the form; ErrConflict when the episode already has one.
	Create(ctx context.Context, form *domain.FirstSessionForm) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.FirstSessionForm, error)
	GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error)
	Update(ctx context.Context, form *domain.FirstSessionForm) error
}

// TreatmentPlanRepository defines the interface for treatment plan data.
type TreatmentPlanRepository interface {
	Create(ctx context.Context, plan *domain.TreatmentPlan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TreatmentPlan, error)
	GetActiveByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (*domain.TreatmentPlan, error)
	GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.TreatmentPlan, error)
}

// SessionRepository defines the interface for therapy visit data.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error)
	GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
}

// ExerciseRepository defines the interface for the exercise library.
type ExerciseRepository interface {
	Create(ctx context.Context, exercise *domain.Exercise) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Exercise, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Exercise, error)
	GetByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Exercise, error)
	Update(ctx context.Context, exercise *domain.Exercise) error
	Delete(ctx context.Context, id primitive.ObjectID, therapistID primitive.ObjectID) error
}

// UploadRepository defines the interface for upload metadata.
type UploadRepository interface {
	Create(ctx context.Context, upload *domain.Upload) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Upload, error)
	GetByExerciseID(ctx context.Context, exerciseID primitive.ObjectID) (*domain.Upload, error)
}
