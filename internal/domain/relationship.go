package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Discipline identifies a therapy discipline a patient can enroll in.
type Discipline string

const (
	DisciplinePhysical     Discipline = "PT"
	DisciplineOccupational Discipline = "OT"
	DisciplineSpeech       Discipline = "ST"
	DisciplineMental       Discipline = "MT"
)

// AllDisciplines lists every discipline offered, in presentation order.
var AllDisciplines = []Discipline{
	DisciplinePhysical,
	DisciplineOccupational,
	DisciplineSpeech,
	DisciplineMental,
}

// DisciplineName returns the human readable program name for a discipline.
func DisciplineName(d Discipline) string {
	switch d {
	case DisciplinePhysical:
		return "Physical Therapy"
	case DisciplineOccupational:
		return "Occupational Therapy"
	case DisciplineSpeech:
		return "Speech Therapy"
	case DisciplineMental:
		return "Mental Health Therapy"
	}
	return string(d)
}

// RelationshipStatus type for the patient-therapist onboarding lifecycle.
type RelationshipStatus string

const (
	RelationshipPendingPayment    RelationshipStatus = "PENDING_PAYMENT"    // Initial status after program selection
	RelationshipPendingScheduling RelationshipStatus = "PENDING_SCHEDULING" // Payment done, first meeting not booked
	RelationshipScheduledMeeting  RelationshipStatus = "SCHEDULED_FIRST_MEETING"
	RelationshipActive            RelationshipStatus = "ACTIVE" // Intake form completed
	RelationshipPaused            RelationshipStatus = "PAUSED"
	RelationshipCompleted         RelationshipStatus = "COMPLETED"
	RelationshipDischarged        RelationshipStatus = "DISCHARGED"
)

// Relationship pairs one patient with one therapist for one discipline.
// It is never deleted; terminal statuses end its lifecycle instead.
type Relationship struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID   primitive.ObjectID `bson:"patientId" json:"patientId"`
	TherapistID primitive.ObjectID `bson:"therapistId" json:"therapistId"`
	Discipline  Discipline         `bson:"discipline" json:"discipline"`
	Status      RelationshipStatus `bson:"status" json:"status"`
	// When the first meeting is booked (set by ScheduleFirstMeeting).
	ScheduledAt *time.Time `bson:"scheduledAt,omitempty" json:"scheduledAt,omitempty"`
	// True when the assigned therapist is the one who invited the patient.
	IsInvitingTherapist bool      `bson:"isInvitingTherapist" json:"isInvitingTherapist"`
	CreatedAt           time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time `bson:"updatedAt" json:"updatedAt"`
}
