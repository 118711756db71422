package service

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository fakes for service tests. They mirror the semantics
// the mongo implementations promise: sentinel errors, CAS transitions and
// the uniqueness constraints the indexes enforce.

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- users ---

type fakeUserRepo struct {
	users map[primitive.ObjectID]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*domain.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrConflict
		}
	}
	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now().UTC()
	cp := *user
	r.users[user.ID] = &cp
	return user.ID, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) FindAvailableTherapist(ctx context.Context, discipline domain.Discipline) (*domain.User, error) {
	var best *domain.User
	for _, u := range r.users {
		if u.Role != domain.RoleTherapist || u.Discipline != discipline || !u.AcceptingNewPatients {
			continue
		}
		if best == nil || u.CreatedAt.Before(best.CreatedAt) {
			best = u
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeUserRepo) SetEnrollmentStatus(ctx context.Context, patientID primitive.ObjectID, status domain.EnrollmentStatus) error {
	u, ok := r.users[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	u.EnrollmentStatus = status
	return nil
}

// --- relationships ---

type fakeRelationshipRepo struct {
	rels map[primitive.ObjectID]*domain.Relationship
}

func newFakeRelationshipRepo() *fakeRelationshipRepo {
	return &fakeRelationshipRepo{rels: make(map[primitive.ObjectID]*domain.Relationship)}
}

func (r *fakeRelationshipRepo) Create(ctx context.Context, rel *domain.Relationship) (primitive.ObjectID, error) {
	for _, existing := range r.rels {
		if existing.PatientID == rel.PatientID && existing.TherapistID == rel.TherapistID {
			return primitive.NilObjectID, repository.ErrConflict
		}
	}
	rel.ID = primitive.NewObjectID()
	rel.CreatedAt = time.Now().UTC()
	cp := *rel
	r.rels[rel.ID] = &cp
	return rel.ID, nil
}

func (r *fakeRelationshipRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Relationship, error) {
	rel, ok := r.rels[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rel
	return &cp, nil
}

func (r *fakeRelationshipRepo) GetByPatientAndTherapist(ctx context.Context, patientID, therapistID primitive.ObjectID) (*domain.Relationship, error) {
	for _, rel := range r.rels {
		if rel.PatientID == patientID && rel.TherapistID == therapistID {
			cp := *rel
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRelationshipRepo) GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.Relationship, error) {
	var out []domain.Relationship
	for _, rel := range r.rels {
		if rel.PatientID == patientID {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (r *fakeRelationshipRepo) GetByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Relationship, error) {
	var out []domain.Relationship
	for _, rel := range r.rels {
		if rel.TherapistID == therapistID {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (r *fakeRelationshipRepo) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to domain.RelationshipStatus) error {
	rel, ok := r.rels[id]
	if !ok || rel.Status != from {
		return repository.ErrUpdateFailed
	}
	rel.Status = to
	rel.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeRelationshipRepo) ScheduleMeeting(ctx context.Context, id primitive.ObjectID, from domain.RelationshipStatus, when time.Time) error {
	rel, ok := r.rels[id]
	if !ok || rel.Status != from {
		return repository.ErrUpdateFailed
	}
	rel.Status = domain.RelationshipScheduledMeeting
	rel.ScheduledAt = &when
	return nil
}

func (r *fakeRelationshipRepo) UpdateScheduledAt(ctx context.Context, id primitive.ObjectID, requiredStatus domain.RelationshipStatus, when time.Time) error {
	rel, ok := r.rels[id]
	if !ok || rel.Status != requiredStatus {
		return repository.ErrUpdateFailed
	}
	rel.ScheduledAt = &when
	return nil
}

// --- episodes ---

type fakeEpisodeRepo struct {
	episodes map[primitive.ObjectID]*domain.Episode
}

func newFakeEpisodeRepo() *fakeEpisodeRepo {
	return &fakeEpisodeRepo{episodes: make(map[primitive.ObjectID]*domain.Episode)}
}

func (r *fakeEpisodeRepo) Create(ctx context.Context, episode *domain.Episode) (primitive.ObjectID, error) {
	episode.ID = primitive.NewObjectID()
	episode.CreatedAt = time.Now().UTC()
	cp := *episode
	r.episodes[episode.ID] = &cp
	return episode.ID, nil
}

func (r *fakeEpisodeRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Episode, error) {
	e, ok := r.episodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEpisodeRepo) GetByRelationshipID(ctx context.Context, relationshipID primitive.ObjectID) (*domain.Episode, error) {
	for _, e := range r.episodes {
		if e.RelationshipID != nil && *e.RelationshipID == relationshipID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeEpisodeRepo) GetByPatientID(ctx context.Context, patientID primitive.ObjectID, statuses ...domain.EpisodeStatus) ([]domain.Episode, error) {
	var out []domain.Episode
	for _, e := range r.episodes {
		if e.PatientID != patientID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				if e.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartDate.Before(out[b].StartDate) })
	return out, nil
}

func (r *fakeEpisodeRepo) UpdateGoals(ctx context.Context, id primitive.ObjectID, goals *domain.GoalsPayload) error {
	e, ok := r.episodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Goals = goals
	return nil
}

func (r *fakeEpisodeRepo) UpdateStartDate(ctx context.Context, id primitive.ObjectID, startDate, expectedEndDate time.Time) error {
	e, ok := r.episodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.StartDate = startDate
	e.ExpectedEndDate = expectedEndDate
	return nil
}

func (r *fakeEpisodeRepo) UpdateDurationWeeks(ctx context.Context, id primitive.ObjectID, durationWeeks int, expectedEndDate time.Time) error {
	e, ok := r.episodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.DurationWeeks = durationWeeks
	e.ExpectedEndDate = expectedEndDate
	return nil
}

// --- milestone templates ---

type fakeTemplateRepo struct {
	templates map[string]*domain.MilestoneTemplate
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[string]*domain.MilestoneTemplate)}
}

func (r *fakeTemplateRepo) UpsertByKey(ctx context.Context, template *domain.MilestoneTemplate) error {
	if existing, ok := r.templates[template.Key]; ok {
		template.ID = existing.ID
	} else {
		template.ID = primitive.NewObjectID()
	}
	cp := *template
	r.templates[template.Key] = &cp
	return nil
}

func (r *fakeTemplateRepo) GetSystemDefaults(ctx context.Context, discipline *domain.Discipline) ([]domain.MilestoneTemplate, error) {
	var out []domain.MilestoneTemplate
	for _, t := range r.templates {
		if !t.IsSystemDefault {
			continue
		}
		if t.Discipline != nil && (discipline == nil || *t.Discipline != *discipline) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DefaultWeek < out[b].DefaultWeek })
	return out, nil
}

// --- episode milestones ---

type fakeMilestoneRepo struct {
	milestones map[primitive.ObjectID]*domain.EpisodeMilestone
	seq        int
}

func newFakeMilestoneRepo() *fakeMilestoneRepo {
	return &fakeMilestoneRepo{milestones: make(map[primitive.ObjectID]*domain.EpisodeMilestone)}
}

func (r *fakeMilestoneRepo) duplicate(m *domain.EpisodeMilestone) bool {
	if m.TemplateID == nil {
		return false
	}
	for _, existing := range r.milestones {
		if existing.TemplateID != nil && existing.EpisodeID == m.EpisodeID &&
			*existing.TemplateID == *m.TemplateID && existing.TargetWeek == m.TargetWeek {
			return true
		}
	}
	return false
}

func (r *fakeMilestoneRepo) insert(m *domain.EpisodeMilestone) {
	m.ID = primitive.NewObjectID()
	r.seq++
	m.CreatedAt = time.Now().UTC().Add(time.Duration(r.seq) * time.Millisecond)
	cp := *m
	r.milestones[m.ID] = &cp
}

func (r *fakeMilestoneRepo) Create(ctx context.Context, milestone *domain.EpisodeMilestone) (primitive.ObjectID, error) {
	if r.duplicate(milestone) {
		return primitive.NilObjectID, repository.ErrConflict
	}
	r.insert(milestone)
	return milestone.ID, nil
}

func (r *fakeMilestoneRepo) CreateMany(ctx context.Context, milestones []domain.EpisodeMilestone) error {
	for i := range milestones {
		if r.duplicate(&milestones[i]) {
			return repository.ErrConflict
		}
		r.insert(&milestones[i])
	}
	return nil
}

func (r *fakeMilestoneRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.EpisodeMilestone, error) {
	m, ok := r.milestones[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMilestoneRepo) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error) {
	var out []domain.EpisodeMilestone
	for _, m := range r.milestones {
		if m.EpisodeID == episodeID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].TargetWeek != out[b].TargetWeek {
			return out[a].TargetWeek < out[b].TargetWeek
		}
		if out[a].OrderIndex != out[b].OrderIndex {
			return out[a].OrderIndex < out[b].OrderIndex
		}
		// Mirrors the _id tiebreak of the mongo sort.
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func (r *fakeMilestoneRepo) CountByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (int64, error) {
	var count int64
	for _, m := range r.milestones {
		if m.EpisodeID == episodeID {
			count++
		}
	}
	return count, nil
}

func (r *fakeMilestoneRepo) FindFirstPending(ctx context.Context, episodeID primitive.ObjectID, milestoneType domain.MilestoneType) (*domain.EpisodeMilestone, error) {
	all, _ := r.GetByEpisodeID(ctx, episodeID)
	for i := range all {
		if all[i].Type == milestoneType && all[i].Status == domain.MilestonePending {
			cp := all[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeMilestoneRepo) Update(ctx context.Context, milestone *domain.EpisodeMilestone) error {
	if _, ok := r.milestones[milestone.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *milestone
	cp.CreatedAt = r.milestones[milestone.ID].CreatedAt
	r.milestones[milestone.ID] = &cp
	return nil
}

func (r *fakeMilestoneRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, ok := r.milestones[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.milestones, id)
	return nil
}

func (r *fakeMilestoneRepo) DeleteByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) error {
	for id, m := range r.milestones {
		if m.EpisodeID == episodeID {
			delete(r.milestones, id)
		}
	}
	return nil
}

// --- first session forms ---

type fakeFormRepo struct {
	forms map[primitive.ObjectID]*domain.FirstSessionForm
}

func newFakeFormRepo() *fakeFormRepo {
	return &fakeFormRepo{forms: make(map[primitive.ObjectID]*domain.FirstSessionForm)}
}

func (r *fakeFormRepo) Create(ctx context.Context, form *domain.FirstSessionForm) (primitive.ObjectID, error) {
	for _, f := range r.forms {
		if f.EpisodeID == form.EpisodeID {
			return primitive.NilObjectID, repository.ErrConflict
		}
	}
	form.ID = primitive.NewObjectID()
	form.CreatedAt = time.Now().UTC()
	cp := *form
	r.forms[form.ID] = &cp
	return form.ID, nil
}

func (r *fakeFormRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.FirstSessionForm, error) {
	f, ok := r.forms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFormRepo) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error) {
	for _, f := range r.forms {
		if f.EpisodeID == episodeID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeFormRepo) Update(ctx context.Context, form *domain.FirstSessionForm) error {
	if _, ok := r.forms[form.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *form
	r.forms[form.ID] = &cp
	return nil
}

// --- treatment plans ---

type fakePlanRepo struct {
	plans map[primitive.ObjectID]*domain.TreatmentPlan
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[primitive.ObjectID]*domain.TreatmentPlan)}
}

func (r *fakePlanRepo) Create(ctx context.Context, plan *domain.TreatmentPlan) (primitive.ObjectID, error) {
	if plan.IsActive {
		for _, p := range r.plans {
			if p.EpisodeID == plan.EpisodeID {
				p.IsActive = false
			}
		}
	}
	plan.ID = primitive.NewObjectID()
	plan.CreatedAt = time.Now().UTC()
	cp := *plan
	r.plans[plan.ID] = &cp
	return plan.ID, nil
}

func (r *fakePlanRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TreatmentPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlanRepo) GetActiveByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (*domain.TreatmentPlan, error) {
	for _, p := range r.plans {
		if p.EpisodeID == episodeID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePlanRepo) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.TreatmentPlan, error) {
	var out []domain.TreatmentPlan
	for _, p := range r.plans {
		if p.EpisodeID == episodeID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// --- sessions ---

type fakeSessionRepo struct {
	sessions map[primitive.ObjectID]*domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[primitive.ObjectID]*domain.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error) {
	session.ID = primitive.NewObjectID()
	session.CreatedAt = time.Now().UTC()
	if session.Status == "" {
		session.Status = domain.SessionScheduled
	}
	cp := *session
	r.sessions[session.ID] = &cp
	return session.ID, nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range r.sessions {
		if s.EpisodeID == episodeID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ScheduledAt.Before(out[b].ScheduledAt) })
	return out, nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *domain.Session) error {
	if _, ok := r.sessions[session.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

// --- exercises ---

type fakeExerciseRepo struct {
	exercises map[primitive.ObjectID]*domain.Exercise
}

func newFakeExerciseRepo() *fakeExerciseRepo {
	return &fakeExerciseRepo{exercises: make(map[primitive.ObjectID]*domain.Exercise)}
}

func (r *fakeExerciseRepo) Create(ctx context.Context, exercise *domain.Exercise) (primitive.ObjectID, error) {
	exercise.ID = primitive.NewObjectID()
	cp := *exercise
	r.exercises[exercise.ID] = &cp
	return exercise.ID, nil
}

func (r *fakeExerciseRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Exercise, error) {
	e, ok := r.exercises[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeExerciseRepo) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]domain.Exercise, error) {
	var out []domain.Exercise
	for _, id := range ids {
		if e, ok := r.exercises[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeExerciseRepo) GetByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Exercise, error) {
	var out []domain.Exercise
	for _, e := range r.exercises {
		if e.TherapistID == therapistID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeExerciseRepo) Update(ctx context.Context, exercise *domain.Exercise) error {
	if _, ok := r.exercises[exercise.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *exercise
	r.exercises[exercise.ID] = &cp
	return nil
}

func (r *fakeExerciseRepo) Delete(ctx context.Context, id primitive.ObjectID, therapistID primitive.ObjectID) error {
	e, ok := r.exercises[id]
	if !ok || e.TherapistID != therapistID {
		return repository.ErrNotFound
	}
	delete(r.exercises, id)
	return nil
}

// --- test environment ---

// testEnv bundles every fake plus the services under test, seeded with the
// system default template catalog.
type testEnv struct {
	users     *fakeUserRepo
	rels      *fakeRelationshipRepo
	episodes  *fakeEpisodeRepo
	templates *fakeTemplateRepo
	miles     *fakeMilestoneRepo
	forms     *fakeFormRepo
	plans     *fakePlanRepo
	sessions  *fakeSessionRepo
	exercises *fakeExerciseRepo

	milestoneSvc    MilestoneService
	relationshipSvc RelationshipService
	formSvc         FirstSessionFormService
	episodeSvc      EpisodeService
	sessionSvc      SessionService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:     newFakeUserRepo(),
		rels:      newFakeRelationshipRepo(),
		episodes:  newFakeEpisodeRepo(),
		templates: newFakeTemplateRepo(),
		miles:     newFakeMilestoneRepo(),
		forms:     newFakeFormRepo(),
		plans:     newFakePlanRepo(),
		sessions:  newFakeSessionRepo(),
		exercises: newFakeExerciseRepo(),
	}

	tx := fakeTxManager{}
	templates := domain.DefaultMilestoneTemplates()
	for i := range templates {
		_ = env.templates.UpsertByKey(context.Background(), &templates[i])
	}

	env.milestoneSvc = NewMilestoneService(env.miles, env.templates, env.episodes, env.rels, env.plans, env.users, tx)
	env.relationshipSvc = NewRelationshipService(env.rels, env.users, env.episodes, env.milestoneSvc, tx)
	env.formSvc = NewFirstSessionFormService(env.forms, env.episodes, env.rels, env.users, env.plans, env.sessions, env.exercises, env.milestoneSvc, tx)
	env.episodeSvc = NewEpisodeService(env.episodes)
	env.sessionSvc = NewSessionService(env.sessions, env.episodes)
	return env
}

func (env *testEnv) addTherapist(name string, discipline domain.Discipline) primitive.ObjectID {
	id, _ := env.users.Create(context.Background(), &domain.User{
		Name:                 name,
		Email:                name + "@clinic.test",
		Role:                 domain.RoleTherapist,
		Discipline:           discipline,
		AcceptingNewPatients: true,
	})
	return id
}

func (env *testEnv) addPatient(name string) primitive.ObjectID {
	id, _ := env.users.Create(context.Background(), &domain.User{
		Name:             name,
		Email:            name + "@patients.test",
		Role:             domain.RolePatient,
		EnrollmentStatus: domain.EnrollmentRegistered,
	})
	return id
}

// addEpisode seeds an episode (and its owning ACTIVE-track relationship in
// SCHEDULED_FIRST_MEETING) directly, bypassing the onboarding flow.
func (env *testEnv) addEpisode(patientID, therapistID primitive.ObjectID, start time.Time, weeks int) primitive.ObjectID {
	relID, _ := env.rels.Create(context.Background(), &domain.Relationship{
		PatientID:   patientID,
		TherapistID: therapistID,
		Discipline:  domain.DisciplinePhysical,
		Status:      domain.RelationshipScheduledMeeting,
		ScheduledAt: &start,
	})
	epID, _ := env.episodes.Create(context.Background(), &domain.Episode{
		RelationshipID:  &relID,
		PatientID:       patientID,
		TherapistID:     therapistID,
		Status:          domain.EpisodeActive,
		StartDate:       start,
		ExpectedEndDate: start.AddDate(0, 0, weeks*7),
		DurationWeeks:   weeks,
		CurrentWeek:     1,
	})
	return epID
}
