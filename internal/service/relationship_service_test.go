package service

import (
	"amitk/therapy-app/internal/domain"
	"context"
	"errors"
	"testing"
	"time"
)

func TestSelectProgramsAssignsInvitingTherapist(t *testing.T) {
	env := newTestEnv()
	inviterID := env.addTherapist("dana", domain.DisciplinePhysical)
	otID := env.addTherapist("yoav", domain.DisciplineOccupational)
	patientID := env.addPatient("noa")
	env.users.users[patientID].InvitedByTherapistID = &inviterID

	created, err := env.relationshipSvc.SelectPrograms(context.Background(), patientID,
		[]domain.Discipline{domain.DisciplinePhysical, domain.DisciplineOccupational})
	if err != nil {
		t.Fatalf("SelectPrograms: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 relationships, got %d", len(created))
	}

	for _, rel := range created {
		if rel.Status != domain.RelationshipPendingPayment {
			t.Errorf("discipline %s: status %s, want PENDING_PAYMENT", rel.Discipline, rel.Status)
		}
		switch rel.Discipline {
		case domain.DisciplinePhysical:
			if rel.TherapistID != inviterID || !rel.IsInvitingTherapist {
				t.Errorf("PT relationship not assigned to inviting therapist")
			}
		case domain.DisciplineOccupational:
			if rel.TherapistID != otID || rel.IsInvitingTherapist {
				t.Errorf("OT relationship should go to the available OT therapist")
			}
		}
	}
}

func TestSelectProgramsIsIdempotentPerTherapist(t *testing.T) {
	env := newTestEnv()
	env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")
	ctx := context.Background()

	first, err := env.relationshipSvc.SelectPrograms(ctx, patientID,
		[]domain.Discipline{domain.DisciplinePhysical})
	if err != nil {
		t.Fatalf("first SelectPrograms: %v", err)
	}

	// Re-selecting the same discipline returns the existing relationship
	// instead of erroring or creating a duplicate.
	second, err := env.relationshipSvc.SelectPrograms(ctx, patientID,
		[]domain.Discipline{domain.DisciplinePhysical})
	if err != nil {
		t.Fatalf("second SelectPrograms: %v", err)
	}
	if len(second) != 1 || second[0].ID != first[0].ID {
		t.Fatalf("expected the existing relationship back, got %+v", second)
	}

	rels, _ := env.rels.GetByPatientID(ctx, patientID)
	if len(rels) != 1 {
		t.Errorf("expected 1 stored relationship, got %d", len(rels))
	}
}

func TestSelectProgramsNoAvailableTherapist(t *testing.T) {
	env := newTestEnv()
	patientID := env.addPatient("noa")

	_, err := env.relationshipSvc.SelectPrograms(context.Background(), patientID,
		[]domain.Discipline{domain.DisciplineSpeech})
	if !errors.Is(err, ErrNoAvailableTherapist) {
		t.Fatalf("expected ErrNoAvailableTherapist, got %v", err)
	}
}

func TestScheduleFirstMeetingRequiresPaymentFirst(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")

	created, err := env.relationshipSvc.SelectPrograms(context.Background(), patientID,
		[]domain.Discipline{domain.DisciplinePhysical})
	if err != nil {
		t.Fatalf("SelectPrograms: %v", err)
	}
	relID := created[0].ID

	// Still PENDING_PAYMENT: scheduling must be rejected.
	_, err = env.relationshipSvc.ScheduleFirstMeeting(context.Background(), therapistID, relID,
		time.Now().Add(48*time.Hour))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestScheduleFirstMeetingRejectsPastTime(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")
	ctx := context.Background()

	created, err := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	if err != nil {
		t.Fatalf("SelectPrograms: %v", err)
	}
	relID := created[0].ID
	if _, err := env.relationshipSvc.CompletePayment(ctx, patientID, relID); err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}

	_, err = env.relationshipSvc.ScheduleFirstMeeting(ctx, therapistID, relID, time.Now().Add(-time.Hour))
	if !errors.Is(err, ErrMeetingInPast) {
		t.Fatalf("expected ErrMeetingInPast, got %v", err)
	}

	// The rejected attempt must not have moved the relationship.
	rel, _ := env.rels.GetByID(ctx, relID)
	if rel.Status != domain.RelationshipPendingScheduling {
		t.Errorf("status %s after rejected scheduling, want PENDING_SCHEDULING", rel.Status)
	}
}

func TestOnboardingFlowCreatesEpisodeAndMilestones(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")
	ctx := context.Background()

	created, err := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	if err != nil {
		t.Fatalf("SelectPrograms: %v", err)
	}
	relID := created[0].ID

	if _, err := env.relationshipSvc.CompletePayment(ctx, patientID, relID); err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}

	meetingAt := time.Now().Add(72 * time.Hour).UTC()
	rel, err := env.relationshipSvc.ScheduleFirstMeeting(ctx, therapistID, relID, meetingAt)
	if err != nil {
		t.Fatalf("ScheduleFirstMeeting: %v", err)
	}
	if rel.Status != domain.RelationshipScheduledMeeting {
		t.Fatalf("status %s, want SCHEDULED_FIRST_MEETING", rel.Status)
	}
	if rel.ScheduledAt == nil || !rel.ScheduledAt.Equal(meetingAt) {
		t.Fatalf("scheduledAt %v, want %v", rel.ScheduledAt, meetingAt)
	}

	episode, err := env.episodes.GetByRelationshipID(ctx, relID)
	if err != nil {
		t.Fatalf("episode not created: %v", err)
	}
	if episode.DurationWeeks != domain.DefaultEpisodeDurationWeeks {
		t.Errorf("durationWeeks %d, want %d", episode.DurationWeeks, domain.DefaultEpisodeDurationWeeks)
	}
	if !episode.StartDate.Equal(meetingAt) {
		t.Errorf("episode start %v, want meeting time %v", episode.StartDate, meetingAt)
	}

	milestones, err := env.miles.GetByEpisodeID(ctx, episode.ID)
	if err != nil || len(milestones) == 0 {
		t.Fatalf("milestones not generated: len=%d err=%v", len(milestones), err)
	}
}

func TestScheduleFirstMeetingReusesExistingEpisode(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")
	ctx := context.Background()

	created, _ := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	relID := created[0].ID
	_, _ = env.relationshipSvc.CompletePayment(ctx, patientID, relID)
	if _, err := env.relationshipSvc.ScheduleFirstMeeting(ctx, therapistID, relID, time.Now().Add(72*time.Hour)); err != nil {
		t.Fatalf("ScheduleFirstMeeting: %v", err)
	}

	episode, _ := env.episodes.GetByRelationshipID(ctx, relID)

	// Drop the relationship back and schedule again; no second episode or
	// milestone set may appear.
	env.rels.rels[relID].Status = domain.RelationshipPendingScheduling
	if _, err := env.relationshipSvc.ScheduleFirstMeeting(ctx, therapistID, relID, time.Now().Add(96*time.Hour)); err != nil {
		t.Fatalf("second ScheduleFirstMeeting: %v", err)
	}

	count := 0
	for _, e := range env.episodes.episodes {
		if e.RelationshipID != nil && *e.RelationshipID == relID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected 1 episode for relationship, got %d", count)
	}
	milestones, _ := env.miles.GetByEpisodeID(ctx, episode.ID)
	if len(milestones) != 9 {
		t.Fatalf("milestone set duplicated: got %d", len(milestones))
	}
}

func TestRescheduleShiftsEpisodeAndMilestones(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")
	ctx := context.Background()

	created, _ := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	relID := created[0].ID
	_, _ = env.relationshipSvc.CompletePayment(ctx, patientID, relID)
	if _, err := env.relationshipSvc.ScheduleFirstMeeting(ctx, therapistID, relID, time.Now().Add(72*time.Hour)); err != nil {
		t.Fatalf("ScheduleFirstMeeting: %v", err)
	}

	newTime := time.Now().Add(240 * time.Hour).UTC()
	rel, err := env.relationshipSvc.RescheduleFirstMeeting(ctx, therapistID, relID, newTime)
	if err != nil {
		t.Fatalf("RescheduleFirstMeeting: %v", err)
	}
	if rel.Status != domain.RelationshipScheduledMeeting {
		t.Fatalf("reschedule changed status to %s", rel.Status)
	}

	episode, _ := env.episodes.GetByRelationshipID(ctx, relID)
	if !episode.StartDate.Equal(newTime) {
		t.Fatalf("episode start %v, want %v", episode.StartDate, newTime)
	}

	milestones, _ := env.miles.GetByEpisodeID(ctx, episode.ID)
	for _, m := range milestones {
		wantDate := newTime.AddDate(0, 0, (m.TargetWeek-1)*7)
		if m.TargetDate == nil || !m.TargetDate.Equal(wantDate) {
			t.Fatalf("milestone week %d not shifted: %v, want %v", m.TargetWeek, m.TargetDate, wantDate)
		}
	}
}

func TestLifecycleTransitionsGuardCurrentStatus(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	patientID := env.addPatient("noa")
	ctx := context.Background()

	created, _ := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	relID := created[0].ID

	// PENDING_PAYMENT cannot be paused or completed.
	if _, err := env.relationshipSvc.Pause(ctx, therapistID, relID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Pause from PENDING_PAYMENT: got %v", err)
	}
	if _, err := env.relationshipSvc.Complete(ctx, therapistID, relID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Complete from PENDING_PAYMENT: got %v", err)
	}

	env.rels.rels[relID].Status = domain.RelationshipActive

	rel, err := env.relationshipSvc.Pause(ctx, therapistID, relID)
	if err != nil || rel.Status != domain.RelationshipPaused {
		t.Fatalf("Pause from ACTIVE: rel=%v err=%v", rel, err)
	}
	rel, err = env.relationshipSvc.Resume(ctx, therapistID, relID)
	if err != nil || rel.Status != domain.RelationshipActive {
		t.Fatalf("Resume from PAUSED: rel=%v err=%v", rel, err)
	}
	rel, err = env.relationshipSvc.Discharge(ctx, therapistID, relID)
	if err != nil || rel.Status != domain.RelationshipDischarged {
		t.Fatalf("Discharge from ACTIVE: rel=%v err=%v", rel, err)
	}

	// Terminal status: nothing further.
	if _, err := env.relationshipSvc.Resume(ctx, therapistID, relID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Resume from DISCHARGED: got %v", err)
	}
}

func TestRelationshipOwnershipChecks(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	otherTherapistID := env.addTherapist("yoav", domain.DisciplineOccupational)
	patientID := env.addPatient("noa")
	otherPatientID := env.addPatient("omer")
	ctx := context.Background()

	created, _ := env.relationshipSvc.SelectPrograms(ctx, patientID, []domain.Discipline{domain.DisciplinePhysical})
	relID := created[0].ID

	if _, err := env.relationshipSvc.CompletePayment(ctx, otherPatientID, relID); !errors.Is(err, ErrRelationshipAccessDenied) {
		t.Fatalf("foreign patient payment: got %v", err)
	}
	if _, err := env.relationshipSvc.ScheduleFirstMeeting(ctx, otherTherapistID, relID, time.Now().Add(48*time.Hour)); !errors.Is(err, ErrRelationshipAccessDenied) {
		t.Fatalf("foreign therapist scheduling: got %v", err)
	}
	if _, err := env.relationshipSvc.GetRelationship(ctx, otherPatientID, relID); !errors.Is(err, ErrRelationshipAccessDenied) {
		t.Fatalf("foreign read: got %v", err)
	}
	if _, err := env.relationshipSvc.GetRelationship(ctx, therapistID, relID); err != nil {
		t.Fatalf("party read: %v", err)
	}
}

func TestTherapistDashboardGroupsByStage(t *testing.T) {
	env := newTestEnv()
	therapistID := env.addTherapist("dana", domain.DisciplinePhysical)
	ctx := context.Background()

	stages := []domain.RelationshipStatus{
		domain.RelationshipPendingPayment,
		domain.RelationshipPendingScheduling,
		domain.RelationshipScheduledMeeting,
		domain.RelationshipActive,
		domain.RelationshipDischarged,
	}
	for i, status := range stages {
		patientID := env.addPatient("patient" + string(rune('a'+i)))
		relID, _ := env.rels.Create(ctx, &domain.Relationship{
			PatientID:   patientID,
			TherapistID: therapistID,
			Discipline:  domain.DisciplinePhysical,
			Status:      domain.RelationshipPendingPayment,
		})
		env.rels.rels[relID].Status = status
	}

	dashboard, err := env.relationshipSvc.GetTherapistDashboard(ctx, therapistID)
	if err != nil {
		t.Fatalf("GetTherapistDashboard: %v", err)
	}

	if len(dashboard.PendingScheduling) != 1 {
		t.Errorf("PendingScheduling = %d, want 1", len(dashboard.PendingScheduling))
	}
	if len(dashboard.Scheduled) != 1 {
		t.Errorf("Scheduled = %d, want 1", len(dashboard.Scheduled))
	}
	if len(dashboard.Active) != 1 {
		t.Errorf("Active = %d, want 1", len(dashboard.Active))
	}
	// PENDING_PAYMENT and DISCHARGED both land in Other.
	if len(dashboard.Other) != 2 {
		t.Errorf("Other = %d, want 2", len(dashboard.Other))
	}
	for _, entry := range dashboard.Active {
		if entry.PatientName == "" {
			t.Errorf("dashboard entry missing patient name")
		}
	}
}
