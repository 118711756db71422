package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus type for the visit lifecycle
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// SessionType distinguishes how a visit is delivered.
type SessionType string

const (
	SessionVideo    SessionType = "VIDEO"
	SessionInPerson SessionType = "IN_PERSON"
)

// Session is a single concrete therapy visit within an episode. The first
// one is created automatically when the intake form is completed.
type Session struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EpisodeID   primitive.ObjectID `bson:"episodeId" json:"episodeId"`
	PatientID   primitive.ObjectID `bson:"patientId" json:"patientId"` // Denormalized for queries/auth
	TherapistID primitive.ObjectID `bson:"therapistId" json:"therapistId"`
	Type        SessionType        `bson:"type" json:"type"`
	Status      SessionStatus      `bson:"status" json:"status"`
	ScheduledAt time.Time          `bson:"scheduledAt" json:"scheduledAt"`
	CompletedAt *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Notes       string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
