package service

import (
	"amitk/therapy-app/internal/domain"
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type formFixture struct {
	env         *testEnv
	therapistID primitive.ObjectID
	patientID   primitive.ObjectID
	relID       primitive.ObjectID
	episodeID   primitive.ObjectID
	exerciseID  primitive.ObjectID
	formID      primitive.ObjectID
}

// newFormFixture walks a patient through onboarding up to a scheduled first
// meeting with a draft intake form and one library exercise.
func newFormFixture(t *testing.T) *formFixture {
	t.Helper()
	env := newTestEnv()
	ctx := context.Background()

	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")

	created, err := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	if err != nil {
		t.Fatalf("SelectPrograms: %v", err)
	}
	relID := created[0].ID
	if _, err := env.relationshipSvc.CompletePayment(ctx, patientID, relID); err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	if _, err := env.relationshipSvc.ScheduleFirstMeeting(ctx, therapistID, relID, time.Now().Add(72*time.Hour)); err != nil {
		t.Fatalf("ScheduleFirstMeeting: %v", err)
	}

	episode, err := env.episodes.GetByRelationshipID(ctx, relID)
	if err != nil {
		t.Fatalf("episode lookup: %v", err)
	}

	exerciseID, _ := env.exercises.Create(ctx, &domain.Exercise{
		TherapistID: therapistID,
		Name:        domain.LocalizedText{En: "Heel raises"},
		DefaultSets: 3,
		DefaultReps: 10,
	})

	form, err := env.formSvc.Create(ctx, therapistID, episode.ID)
	if err != nil {
		t.Fatalf("form Create: %v", err)
	}

	return &formFixture{
		env:         env,
		therapistID: therapistID,
		patientID:   patientID,
		relID:       relID,
		episodeID:   episode.ID,
		exerciseID:  exerciseID,
		formID:      form.ID,
	}
}

func (f *formFixture) fillRequiredSections(t *testing.T) {
	t.Helper()
	_, err := f.env.formSvc.Update(context.Background(), f.therapistID, f.formID, UpdateFormInput{
		BasicData: &domain.BasicDataSection{Age: 57, MedicalHistory: "knee replacement"},
		TherapyGoals: &domain.TherapyGoalsSection{
			Goals:            []domain.TherapyGoal{{Description: "Climb stairs unassisted"}},
			ExpectedOutcomes: "independent mobility",
		},
		InitialProgram: &domain.InitialProgramSection{
			Exercises: []domain.SelectedExercise{{ExerciseID: f.exerciseID, Order: 1}},
		},
	})
	if err != nil {
		t.Fatalf("form Update: %v", err)
	}
}

func TestFormCreateIsOnePerEpisode(t *testing.T) {
	f := newFormFixture(t)
	_, err := f.env.formSvc.Create(context.Background(), f.therapistID, f.episodeID)
	if !errors.Is(err, ErrFormExists) {
		t.Fatalf("expected ErrFormExists, got %v", err)
	}
}

func TestFormCompleteRejectsMissingSections(t *testing.T) {
	cases := []struct {
		name string
		fill func(f *formFixture) UpdateFormInput
	}{
		{
			name: "missing basic data",
			fill: func(f *formFixture) UpdateFormInput {
				return UpdateFormInput{
					TherapyGoals:   &domain.TherapyGoalsSection{Goals: []domain.TherapyGoal{{Description: "walk"}}},
					InitialProgram: &domain.InitialProgramSection{Exercises: []domain.SelectedExercise{{ExerciseID: f.exerciseID}}},
				}
			},
		},
		{
			name: "empty goals",
			fill: func(f *formFixture) UpdateFormInput {
				return UpdateFormInput{
					BasicData:      &domain.BasicDataSection{Age: 40},
					TherapyGoals:   &domain.TherapyGoalsSection{Goals: []domain.TherapyGoal{}},
					InitialProgram: &domain.InitialProgramSection{Exercises: []domain.SelectedExercise{{ExerciseID: f.exerciseID}}},
				}
			},
		},
		{
			name: "empty program",
			fill: func(f *formFixture) UpdateFormInput {
				return UpdateFormInput{
					BasicData:      &domain.BasicDataSection{Age: 40},
					TherapyGoals:   &domain.TherapyGoalsSection{Goals: []domain.TherapyGoal{{Description: "walk"}}},
					InitialProgram: &domain.InitialProgramSection{Exercises: []domain.SelectedExercise{}},
				}
			},
		},
		{
			name: "unknown exercise",
			fill: func(f *formFixture) UpdateFormInput {
				return UpdateFormInput{
					BasicData:      &domain.BasicDataSection{Age: 40},
					TherapyGoals:   &domain.TherapyGoalsSection{Goals: []domain.TherapyGoal{{Description: "walk"}}},
					InitialProgram: &domain.InitialProgramSection{Exercises: []domain.SelectedExercise{{ExerciseID: primitive.NewObjectID()}}},
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFormFixture(t)
			ctx := context.Background()
			if _, err := f.env.formSvc.Update(ctx, f.therapistID, f.formID, tc.fill(f)); err != nil {
				t.Fatalf("Update: %v", err)
			}
			_, err := f.env.formSvc.Complete(ctx, f.therapistID, f.formID)
			if !errors.Is(err, ErrFormIncomplete) {
				t.Fatalf("expected ErrFormIncomplete, got %v", err)
			}

			// The gate held: nothing was activated.
			rel, _ := f.env.rels.GetByID(ctx, f.relID)
			if rel.Status != domain.RelationshipScheduledMeeting {
				t.Errorf("relationship moved to %s despite failed completion", rel.Status)
			}
		})
	}
}

func TestFormCompleteAppliesAllSideEffects(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()
	f.fillRequiredSections(t)

	form, err := f.env.formSvc.Complete(ctx, f.therapistID, f.formID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if form.Status != domain.FormCompleted || form.CompletedAt == nil {
		t.Fatalf("form not frozen: status=%s completedAt=%v", form.Status, form.CompletedAt)
	}

	// Goals copied to the episode.
	episode, _ := f.env.episodes.GetByID(ctx, f.episodeID)
	if episode.Goals == nil || len(episode.Goals.Goals) != 1 || episode.Goals.Goals[0].Description != "Climb stairs unassisted" {
		t.Errorf("goals not copied to episode: %+v", episode.Goals)
	}

	// Relationship activated, patient enrolled.
	rel, _ := f.env.rels.GetByID(ctx, f.relID)
	if rel.Status != domain.RelationshipActive {
		t.Errorf("relationship status %s, want ACTIVE", rel.Status)
	}
	patient, _ := f.env.users.GetByID(ctx, f.patientID)
	if patient.EnrollmentStatus != domain.EnrollmentEnrolled {
		t.Errorf("enrollment status %s, want ENROLLED", patient.EnrollmentStatus)
	}

	// Initial plan materialized with library defaults filled in.
	plan, err := f.env.plans.GetActiveByEpisodeID(ctx, f.episodeID)
	if err != nil {
		t.Fatalf("no active plan: %v", err)
	}
	if len(plan.Exercises) != 1 || plan.Exercises[0].Sets != 3 || plan.Exercises[0].Reps != 10 {
		t.Errorf("plan exercises = %+v, want defaults sets=3 reps=10", plan.Exercises)
	}

	// First concrete session scheduled.
	sessions, _ := f.env.sessions.GetByEpisodeID(ctx, f.episodeID)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	// Baseline milestone completed.
	milestones, _ := f.env.miles.GetByEpisodeID(ctx, f.episodeID)
	baselineDone := false
	for _, m := range milestones {
		if m.Type == domain.MilestoneBaselineAssessment && m.Status == domain.MilestoneCompleted {
			baselineDone = true
		}
	}
	if !baselineDone {
		t.Errorf("baseline milestone not completed")
	}
}

func TestFormCompleteIsNotRepeatable(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()
	f.fillRequiredSections(t)

	if _, err := f.env.formSvc.Complete(ctx, f.therapistID, f.formID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err := f.env.formSvc.Complete(ctx, f.therapistID, f.formID)
	if !errors.Is(err, ErrFormAlreadyCompleted) {
		t.Fatalf("expected ErrFormAlreadyCompleted, got %v", err)
	}

	// Side effects ran once.
	plans, _ := f.env.plans.GetByEpisodeID(ctx, f.episodeID)
	if len(plans) != 1 {
		t.Errorf("plan duplicated: %d", len(plans))
	}
	sessions, _ := f.env.sessions.GetByEpisodeID(ctx, f.episodeID)
	if len(sessions) != 1 {
		t.Errorf("session duplicated: %d", len(sessions))
	}
}

func TestCompletedFormAllowsOnlyGoalEdits(t *testing.T) {
	f := newFormFixture(t)
	ctx := context.Background()
	f.fillRequiredSections(t)
	if _, err := f.env.formSvc.Complete(ctx, f.therapistID, f.formID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Non-goal sections are frozen.
	_, err := f.env.formSvc.Update(ctx, f.therapistID, f.formID, UpdateFormInput{
		BasicData: &domain.BasicDataSection{Age: 58},
	})
	if !errors.Is(err, ErrFormAlreadyCompleted) {
		t.Fatalf("expected ErrFormAlreadyCompleted for basicData edit, got %v", err)
	}

	// Goal edits pass through and propagate to the episode.
	form, err := f.env.formSvc.Update(ctx, f.therapistID, f.formID, UpdateFormInput{
		TherapyGoals: &domain.TherapyGoalsSection{
			Goals: []domain.TherapyGoal{{Description: "Run 5k"}},
		},
	})
	if err != nil {
		t.Fatalf("goal edit: %v", err)
	}
	if form.TherapyGoals.Goals[0].Description != "Run 5k" {
		t.Errorf("form goals not updated")
	}
	episode, _ := f.env.episodes.GetByID(ctx, f.episodeID)
	if episode.Goals == nil || episode.Goals.Goals[0].Description != "Run 5k" {
		t.Errorf("episode goals not kept in sync: %+v", episode.Goals)
	}
}

func TestFormScopedToEpisodeTherapist(t *testing.T) {
	f := newFormFixture(t)
	intruderID := f.env.addTherapist("mallory", domain.DisciplineSpeech)
	ctx := context.Background()

	if _, err := f.env.formSvc.GetByEpisodeID(ctx, intruderID, f.episodeID); !errors.Is(err, ErrFormAccessDenied) {
		t.Fatalf("foreign read: got %v", err)
	}
	if _, err := f.env.formSvc.Complete(ctx, intruderID, f.formID); !errors.Is(err, ErrFormAccessDenied) {
		t.Fatalf("foreign complete: got %v", err)
	}
}
