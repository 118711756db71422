package service

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrEpisodeNotFound   = errors.New("episode not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
)

// CreateMilestoneInput carries the fields for a manually authored milestone.
type CreateMilestoneInput struct {
	Type          domain.MilestoneType
	Name          domain.LocalizedText
	Description   domain.LocalizedText
	TargetWeek    int
	TargetDate    *time.Time // Overrides the computed date when set
	TriggerType   domain.TriggerType
	TriggerConfig *domain.TriggerConfig
	OrderIndex    *int // Defaults to targetWeek*10
}

// UpdateMilestoneInput carries partial edits; nil fields are left unchanged.
type UpdateMilestoneInput struct {
	Name          *domain.LocalizedText
	Description   *domain.LocalizedText
	TargetWeek    *int       // Recomputes the target date from the episode start
	TargetDate    *time.Time // Explicit date override
	TriggerType   *domain.TriggerType
	TriggerConfig *domain.TriggerConfig
	OrderIndex    *int
}

// ProgramSummary is one entry of the patient timeline's program list.
type ProgramSummary struct {
	EpisodeID     primitive.ObjectID   `json:"episodeId"`
	ProgramName   string               `json:"programName"`
	TherapistName string               `json:"therapistName"`
	Discipline    domain.Discipline    `json:"discipline,omitempty"`
	CurrentWeek   int                  `json:"currentWeek"`
	TotalWeeks    int                  `json:"totalWeeks"`
	Status        domain.EpisodeStatus `json:"status"`
}

// TimelineMilestone is one entry of the flattened cross-episode milestone list.
type TimelineMilestone struct {
	ID            primitive.ObjectID     `json:"id"`
	EpisodeID     primitive.ObjectID     `json:"episodeId"`
	Type          domain.MilestoneType   `json:"type"`
	Name          domain.LocalizedText   `json:"name"`
	Description   domain.LocalizedText   `json:"description"`
	Week          int                    `json:"week"`
	Status        domain.MilestoneStatus `json:"status"`
	TargetDate    *time.Time             `json:"targetDate,omitempty"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	TherapistName string                 `json:"therapistName,omitempty"`
}

// Timeline merges milestones and program summaries across all of a
// patient's active and paused episodes.
type Timeline struct {
	Programs   []ProgramSummary    `json:"programs"`
	Milestones []TimelineMilestone `json:"milestones"`
}

// --- Service Interface ---

// MilestoneService owns template expansion, milestone lifecycle and the
// patient timeline view.
type MilestoneService interface {
	// Initialize expands the system-default templates into the episode's
	// milestone set. Idempotent: an episode that already has milestones is
	// returned untouched. Does not open its own transaction so compound
	// callers can run it inside theirs.
	Initialize(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error)
	GetEpisodeMilestones(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error)
	CreateMilestone(ctx context.Context, episodeID primitive.ObjectID, input CreateMilestoneInput) (*domain.EpisodeMilestone, error)
	UpdateMilestone(ctx context.Context, id primitive.ObjectID, input UpdateMilestoneInput) (*domain.EpisodeMilestone, error)
	DeleteMilestone(ctx context.Context, id primitive.ObjectID) error
	// Complete marks any milestone COMPLETED, optionally linking the
	// session that satisfied it. No precondition beyond existence.
	Complete(ctx context.Context, id primitive.ObjectID, linkedSessionID *primitive.ObjectID) (*domain.EpisodeMilestone, error)
	Skip(ctx context.Context, id primitive.ObjectID) (*domain.EpisodeMilestone, error)
	// CompleteBaselineAssessment completes the first pending
	// baseline-assessment milestone of the episode. Returns (nil, nil)
	// when none is pending; calling it again after success is a no-op.
	CompleteBaselineAssessment(ctx context.Context, episodeID primitive.ObjectID) (*domain.EpisodeMilestone, error)
	// ResetToDefaults deletes every milestone of the episode and re-runs
	// Initialize. Destructive of manual edits and completion history.
	ResetToDefaults(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error)
	// RecomputeTargetDates refreshes every milestone's target date after
	// the episode's start date moved. Target weeks are preserved.
	RecomputeTargetDates(ctx context.Context, episodeID primitive.ObjectID, startDate time.Time) error
	GetPatientTimeline(ctx context.Context, patientID primitive.ObjectID) (*Timeline, error)
}

// --- Service Implementation ---

type milestoneService struct {
	milestoneRepo    repository.MilestoneRepository
	templateRepo     repository.MilestoneTemplateRepository
	episodeRepo      repository.EpisodeRepository
	relationshipRepo repository.RelationshipRepository
	planRepo         repository.TreatmentPlanRepository
	userRepo         repository.UserRepository
	txManager        repository.TransactionManager
}

// NewMilestoneService creates a new instance of milestoneService.
func NewMilestoneService(
	milestoneRepo repository.MilestoneRepository,
	templateRepo repository.MilestoneTemplateRepository,
	episodeRepo repository.EpisodeRepository,
	relationshipRepo repository.RelationshipRepository,
	planRepo repository.TreatmentPlanRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
) MilestoneService {
	return &milestoneService{
		milestoneRepo:    milestoneRepo,
		templateRepo:     templateRepo,
		episodeRepo:      episodeRepo,
		relationshipRepo: relationshipRepo,
		planRepo:         planRepo,
		userRepo:         userRepo,
		txManager:        txManager,
	}
}

// Initialize expands templates into concrete milestone rows for an episode.
func (s *milestoneService) Initialize(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error) {
	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}

	// Idempotency guard: never generate a second set. The unique index on
	// (episodeId, templateId, targetWeek) backs this up against a race
	// between two concurrent calls.
	count, err := s.milestoneRepo.CountByEpisodeID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return s.milestoneRepo.GetByEpisodeID(ctx, episodeID)
	}

	discipline, err := s.episodeDiscipline(ctx, episode)
	if err != nil {
		return nil, err
	}

	templates, err := s.templateRepo.GetSystemDefaults(ctx, discipline)
	if err != nil {
		return nil, err
	}

	therapistName := s.therapistDisplayName(ctx, episode.TherapistID)

	var batch []domain.EpisodeMilestone
	for i := range templates {
		template := &templates[i]
		if template.IsRecurring && template.RecurrenceWeeks > 0 {
			// One instance per interval, inclusive of the final week.
			for week := template.DefaultWeek; week <= episode.DurationWeeks; week += template.RecurrenceWeeks {
				batch = append(batch, instantiateTemplate(template, episode, week, therapistName))
			}
		} else {
			batch = append(batch, instantiateTemplate(template, episode, template.DefaultWeek, therapistName))
		}
	}

	if err := s.milestoneRepo.CreateMany(ctx, batch); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Lost the race against a concurrent initialization; the other
			// caller's set is the episode's set.
			return s.milestoneRepo.GetByEpisodeID(ctx, episodeID)
		}
		return nil, err
	}

	return s.milestoneRepo.GetByEpisodeID(ctx, episodeID)
}

// instantiateTemplate copies template fields verbatim into a concrete
// milestone at the given week.
func instantiateTemplate(template *domain.MilestoneTemplate, episode *domain.Episode, week int, therapistName string) domain.EpisodeMilestone {
	targetDate := domain.MilestoneTargetDate(episode.StartDate, week)
	templateID := template.ID
	return domain.EpisodeMilestone{
		EpisodeID:     episode.ID,
		TemplateID:    &templateID,
		Type:          template.Type,
		Name:          template.Name,
		Description:   template.Description,
		TargetWeek:    week,
		TargetDate:    &targetDate,
		Status:        domain.MilestonePending,
		TriggerType:   template.TriggerType,
		TriggerConfig: template.TriggerConfig,
		OrderIndex:    domain.DefaultOrderIndex(week),
		TherapistName: therapistName,
	}
}

// GetEpisodeMilestones lists an episode's milestones in week-major order.
func (s *milestoneService) GetEpisodeMilestones(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error) {
	if _, err := s.episodeRepo.GetByID(ctx, episodeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	return s.milestoneRepo.GetByEpisodeID(ctx, episodeID)
}

// CreateMilestone adds a manually authored milestone to an episode.
func (s *milestoneService) CreateMilestone(ctx context.Context, episodeID primitive.ObjectID, input CreateMilestoneInput) (*domain.EpisodeMilestone, error) {
	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if input.TargetWeek < 1 {
		return nil, errors.New("targetWeek must be 1-based")
	}

	targetDate := input.TargetDate
	if targetDate == nil {
		computed := domain.MilestoneTargetDate(episode.StartDate, input.TargetWeek)
		targetDate = &computed
	}
	orderIndex := domain.DefaultOrderIndex(input.TargetWeek)
	if input.OrderIndex != nil {
		orderIndex = *input.OrderIndex
	}

	milestone := &domain.EpisodeMilestone{
		EpisodeID:     episodeID,
		Type:          input.Type,
		Name:          input.Name,
		Description:   input.Description,
		TargetWeek:    input.TargetWeek,
		TargetDate:    targetDate,
		Status:        domain.MilestonePending,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		OrderIndex:    orderIndex,
		TherapistName: s.therapistDisplayName(ctx, episode.TherapistID),
	}

	id, err := s.milestoneRepo.Create(ctx, milestone)
	if err != nil {
		return nil, err
	}
	milestone.ID = id
	return milestone, nil
}

// UpdateMilestone applies partial edits. A target-week change recomputes
// the date from the episode's start date, not from today, preserving the
// week-offset model even if the episode was edited after creation.
func (s *milestoneService) UpdateMilestone(ctx context.Context, id primitive.ObjectID, input UpdateMilestoneInput) (*domain.EpisodeMilestone, error) {
	milestone, err := s.milestoneRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, err
	}

	if input.Name != nil {
		milestone.Name = *input.Name
	}
	if input.Description != nil {
		milestone.Description = *input.Description
	}
	if input.TargetWeek != nil {
		if *input.TargetWeek < 1 {
			return nil, errors.New("targetWeek must be 1-based")
		}
		episode, err := s.episodeRepo.GetByID(ctx, milestone.EpisodeID)
		if err != nil {
			return nil, err
		}
		milestone.TargetWeek = *input.TargetWeek
		computed := domain.MilestoneTargetDate(episode.StartDate, *input.TargetWeek)
		milestone.TargetDate = &computed
	}
	if input.TargetDate != nil {
		milestone.TargetDate = input.TargetDate
	}
	if input.TriggerType != nil {
		milestone.TriggerType = *input.TriggerType
	}
	if input.TriggerConfig != nil {
		milestone.TriggerConfig = input.TriggerConfig
	}
	if input.OrderIndex != nil {
		milestone.OrderIndex = *input.OrderIndex
	}

	if err := s.milestoneRepo.Update(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// DeleteMilestone removes a single milestone.
func (s *milestoneService) DeleteMilestone(ctx context.Context, id primitive.ObjectID) error {
	err := s.milestoneRepo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMilestoneNotFound
	}
	return err
}

// Complete marks a milestone COMPLETED regardless of its current status.
func (s *milestoneService) Complete(ctx context.Context, id primitive.ObjectID, linkedSessionID *primitive.ObjectID) (*domain.EpisodeMilestone, error) {
	milestone, err := s.milestoneRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	milestone.Status = domain.MilestoneCompleted
	milestone.CompletedAt = &now
	if linkedSessionID != nil {
		milestone.LinkedSessionID = linkedSessionID
	}

	if err := s.milestoneRepo.Update(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// Skip marks a milestone SKIPPED.
func (s *milestoneService) Skip(ctx context.Context, id primitive.ObjectID) (*domain.EpisodeMilestone, error) {
	milestone, err := s.milestoneRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, err
	}

	milestone.Status = domain.MilestoneSkipped

	if err := s.milestoneRepo.Update(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// CompleteBaselineAssessment completes the episode's pending baseline
// milestone. The no-pending case is a successful null result, not an error.
func (s *milestoneService) CompleteBaselineAssessment(ctx context.Context, episodeID primitive.ObjectID) (*domain.EpisodeMilestone, error) {
	milestone, err := s.milestoneRepo.FindFirstPending(ctx, episodeID, domain.MilestoneBaselineAssessment)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	milestone.Status = domain.MilestoneCompleted
	milestone.CompletedAt = &now

	if err := s.milestoneRepo.Update(ctx, milestone); err != nil {
		return nil, err
	}
	return milestone, nil
}

// ResetToDefaults wipes the episode's milestone set and regenerates it from
// the template catalog, in one transaction.
func (s *milestoneService) ResetToDefaults(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error) {
	if _, err := s.episodeRepo.GetByID(ctx, episodeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.milestoneRepo.DeleteByEpisodeID(txCtx, episodeID); err != nil {
			return err
		}
		_, err := s.Initialize(txCtx, episodeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.milestoneRepo.GetByEpisodeID(ctx, episodeID)
}

// RecomputeTargetDates refreshes target dates after a start-date move.
func (s *milestoneService) RecomputeTargetDates(ctx context.Context, episodeID primitive.ObjectID, startDate time.Time) error {
	milestones, err := s.milestoneRepo.GetByEpisodeID(ctx, episodeID)
	if err != nil {
		return err
	}
	for i := range milestones {
		m := &milestones[i]
		computed := domain.MilestoneTargetDate(startDate, m.TargetWeek)
		m.TargetDate = &computed
		if err := s.milestoneRepo.Update(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// GetPatientTimeline merges milestones and program summaries across the
// patient's ACTIVE and PAUSED episodes. Read-only.
func (s *milestoneService) GetPatientTimeline(ctx context.Context, patientID primitive.ObjectID) (*Timeline, error) {
	episodes, err := s.episodeRepo.GetByPatientID(ctx, patientID, domain.EpisodeActive, domain.EpisodePaused)
	if err != nil {
		return nil, err
	}

	timeline := &Timeline{
		Programs:   []ProgramSummary{},
		Milestones: []TimelineMilestone{},
	}

	for i := range episodes {
		episode := &episodes[i]

		programName := "Treatment Program"
		if plan, err := s.planRepo.GetActiveByEpisodeID(ctx, episode.ID); err == nil {
			programName = plan.Name
		}

		var discipline domain.Discipline
		if d, err := s.episodeDiscipline(ctx, episode); err == nil && d != nil {
			discipline = *d
		}

		timeline.Programs = append(timeline.Programs, ProgramSummary{
			EpisodeID:     episode.ID,
			ProgramName:   programName,
			TherapistName: s.therapistDisplayName(ctx, episode.TherapistID),
			Discipline:    discipline,
			CurrentWeek:   episode.CurrentWeek,
			TotalWeeks:    episode.DurationWeeks,
			Status:        episode.Status,
		})

		milestones, err := s.milestoneRepo.GetByEpisodeID(ctx, episode.ID)
		if err != nil {
			return nil, err
		}
		for j := range milestones {
			m := &milestones[j]
			timeline.Milestones = append(timeline.Milestones, TimelineMilestone{
				ID:            m.ID,
				EpisodeID:     episode.ID,
				Type:          m.Type,
				Name:          m.Name,
				Description:   m.Description,
				Week:          m.TargetWeek,
				Status:        m.Status,
				TargetDate:    m.TargetDate,
				CompletedAt:   m.CompletedAt,
				TherapistName: m.TherapistName,
			})
		}
	}

	// Week ascending, target date as the tie-breaker. Milestones without a
	// target date keep their relative order.
	sort.SliceStable(timeline.Milestones, func(a, b int) bool {
		ma, mb := timeline.Milestones[a], timeline.Milestones[b]
		if ma.Week != mb.Week {
			return ma.Week < mb.Week
		}
		if ma.TargetDate != nil && mb.TargetDate != nil {
			return ma.TargetDate.Before(*mb.TargetDate)
		}
		return false
	})

	return timeline, nil
}

// episodeDiscipline resolves the episode's discipline through its owning
// relationship; episodes without a relationship are discipline-agnostic.
func (s *milestoneService) episodeDiscipline(ctx context.Context, episode *domain.Episode) (*domain.Discipline, error) {
	if episode.RelationshipID == nil {
		return nil, nil
	}
	rel, err := s.relationshipRepo.GetByID(ctx, *episode.RelationshipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	discipline := rel.Discipline
	return &discipline, nil
}

// therapistDisplayName resolves the denormalized name cached on milestones.
// Best effort: an unresolvable therapist yields an empty name, not an error.
func (s *milestoneService) therapistDisplayName(ctx context.Context, therapistID primitive.ObjectID) string {
	therapist, err := s.userRepo.GetByID(ctx, therapistID)
	if err != nil {
		return ""
	}
	return therapist.Name
}
