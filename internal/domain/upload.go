package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Upload holds metadata for an object stored in S3 (exercise demo videos).
// The object itself lives in the bucket under ObjectKey.
type Upload struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExerciseID  primitive.ObjectID `bson:"exerciseId" json:"exerciseId"`
	TherapistID primitive.ObjectID `bson:"therapistId" json:"therapistId"`
	ObjectKey   string             `bson:"objectKey" json:"objectKey"`
	FileName    string             `bson:"fileName" json:"fileName"`
	FileSize    int64              `bson:"fileSize" json:"fileSize"`
	ContentType string             `bson:"contentType" json:"contentType"`
	UploadedAt  time.Time          `bson:"uploadedAt" json:"uploadedAt"`
}
