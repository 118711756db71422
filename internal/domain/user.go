package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

// EnrollmentStatus tracks how far a patient has progressed through onboarding.
type EnrollmentStatus string

const (
	EnrollmentRegistered EnrollmentStatus = "REGISTERED" // Account created, no program selected yet
	EnrollmentEnrolled   EnrollmentStatus = "ENROLLED"   // At least one relationship reached ACTIVE
)

// User represents a user in the system (either a Therapist or a Patient).
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Should be unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`

	// --- Therapist-specific ---
	Discipline           Discipline `bson:"discipline,omitempty" json:"discipline,omitempty"`
	AcceptingNewPatients bool       `bson:"acceptingNewPatients,omitempty" json:"acceptingNewPatients,omitempty"`

	// --- Patient-specific ---
	EnrollmentStatus EnrollmentStatus `bson:"enrollmentStatus,omitempty" json:"enrollmentStatus,omitempty"`
	// The therapist who originally invited this patient, if any.
	InvitedByTherapistID *primitive.ObjectID `bson:"invitedByTherapistId,omitempty" json:"invitedByTherapistId,omitempty"`
}

func (u *User) IsTherapist() bool {
	return u.Role == RoleTherapist
}

func (u *User) IsPatient() bool {
	return u.Role == RolePatient
}
