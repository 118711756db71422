package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanExercise is one prescribed exercise inside a treatment plan.
type PlanExercise struct {
	ExerciseID primitive.ObjectID `bson:"exerciseId" json:"exerciseId"`
	Order      int                `bson:"order" json:"order"`
	Sets       int                `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps       int                `bson:"reps,omitempty" json:"reps,omitempty"`
	Duration   int                `bson:"duration,omitempty" json:"duration,omitempty"` // minutes
	Notes      string             `bson:"notes,omitempty" json:"notes,omitempty"`
}

// TreatmentPlan represents the exercise program prescribed to a patient for
// an episode. The initial plan is materialized from the intake form's
// exercise selection.
type TreatmentPlan struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EpisodeID   primitive.ObjectID `bson:"episodeId" json:"episodeId"`
	PatientID   primitive.ObjectID `bson:"patientId" json:"patientId"`   // Denormalized
	TherapistID primitive.ObjectID `bson:"therapistId" json:"therapistId"` // Denormalized
	Name        string             `bson:"name" json:"name"`
	// IsActive marks the plan currently in effect for the episode.
	IsActive  bool           `bson:"isActive" json:"isActive"`
	Exercises []PlanExercise `bson:"exercises" json:"exercises"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time      `bson:"updatedAt" json:"updatedAt"`
}
