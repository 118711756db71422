package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Exercise represents a single exercise definition in the content library.
type Exercise struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TherapistID primitive.ObjectID `bson:"therapistId" json:"therapistId"` // Owning therapist
	Name        LocalizedText      `bson:"name" json:"name"`
	Description LocalizedText      `bson:"description,omitempty" json:"description,omitempty"`

	Discipline  Discipline `bson:"discipline,omitempty" json:"discipline,omitempty"`
	BodyRegion  string     `bson:"bodyRegion,omitempty" json:"bodyRegion,omitempty"` // e.g., "Shoulder", "Knee"
	Difficulty  string     `bson:"difficulty,omitempty" json:"difficulty,omitempty"` // e.g., "Easy", "Medium", "Hard"
	DefaultSets int        `bson:"defaultSets,omitempty" json:"defaultSets,omitempty"`
	DefaultReps int        `bson:"defaultReps,omitempty" json:"defaultReps,omitempty"`
	// VideoObjectKey points at the demo video in object storage; a
	// presigned URL is generated on read.
	VideoObjectKey string `bson:"videoObjectKey,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
