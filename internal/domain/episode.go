package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultEpisodeDurationWeeks is the program length assigned when an episode
// is created by scheduling the first meeting.
const DefaultEpisodeDurationWeeks = 12

// EpisodeStatus type for the treatment program lifecycle
type EpisodeStatus string

const (
	EpisodeActive    EpisodeStatus = "ACTIVE"
	EpisodePaused    EpisodeStatus = "PAUSED"
	EpisodeCompleted EpisodeStatus = "COMPLETED"
)

// LocalizedText carries a bilingual (English/Hebrew) string pair.
type LocalizedText struct {
	En string `bson:"en" json:"en"`
	He string `bson:"he,omitempty" json:"he,omitempty"`
}

// TherapyGoal is a single treatment goal agreed during the first encounter.
type TherapyGoal struct {
	Description string     `bson:"description" json:"description"`
	TargetValue string     `bson:"targetValue,omitempty" json:"targetValue,omitempty"`
	TargetDate  *time.Time `bson:"targetDate,omitempty" json:"targetDate,omitempty"`
}

// GoalsPayload is the structured goals block copied from the intake form
// onto the episode when the form is completed.
type GoalsPayload struct {
	Goals            []TherapyGoal `bson:"goals" json:"goals"`
	ExpectedOutcomes string        `bson:"expectedOutcomes,omitempty" json:"expectedOutcomes,omitempty"`
}

// Episode represents a bounded treatment-program instance belonging to a
// relationship. Created exactly once per relationship, when the first
// meeting is scheduled.
type Episode struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RelationshipID *primitive.ObjectID `bson:"relationshipId,omitempty" json:"relationshipId,omitempty"`
	PatientID      primitive.ObjectID  `bson:"patientId" json:"patientId"`
	TherapistID    primitive.ObjectID  `bson:"therapistId" json:"therapistId"`
	Status         EpisodeStatus       `bson:"status" json:"status"`
	StartDate      time.Time           `bson:"startDate" json:"startDate"`
	// ExpectedEndDate is derived from StartDate + DurationWeeks at creation.
	ExpectedEndDate time.Time     `bson:"expectedEndDate" json:"expectedEndDate"`
	DurationWeeks   int           `bson:"durationWeeks" json:"durationWeeks"`
	CurrentWeek     int           `bson:"currentWeek" json:"currentWeek"`
	Goals           *GoalsPayload `bson:"goals,omitempty" json:"goals,omitempty"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}
