package mongo

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const episodeCollectionName = "episodes"

// mongoEpisodeRepository implements repository.EpisodeRepository
type mongoEpisodeRepository struct {
	collection *mongo.Collection
}

// NewMongoEpisodeRepository creates a new Episode repository backed by MongoDB.
func NewMongoEpisodeRepository(db *mongo.Database) repository.EpisodeRepository {
	return &mongoEpisodeRepository{
		collection: db.Collection(episodeCollectionName),
	}
}

// Create inserts a new episode into the database.
func (r *mongoEpisodeRepository) Create(ctx context.Context, episode *domain.Episode) (primitive.ObjectID, error) {
	if episode.PatientID == primitive.NilObjectID || episode.TherapistID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("episode requires patientId and therapistId")
	}
	if episode.DurationWeeks <= 0 {
		return primitive.NilObjectID, errors.New("episode requires a positive durationWeeks")
	}

	episode.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	episode.CreatedAt = now
	episode.UpdatedAt = now
	if episode.Status == "" {
		episode.Status = domain.EpisodeActive
	}
	if episode.CurrentWeek == 0 {
		episode.CurrentWeek = 1
	}

	result, err := r.collection.InsertOne(ctx, episode)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted episode ID")
	}
	return insertedID, nil
}

// GetByID retrieves an episode by its ID.
func (r *mongoEpisodeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Episode, error) {
	var episode domain.Episode
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&episode)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &episode, nil
}

// GetByRelationshipID retrieves the episode owned by a relationship.
func (r *mongoEpisodeRepository) GetByRelationshipID(ctx context.Context, relationshipID primitive.ObjectID) (*domain.Episode, error) {
	var episode domain.Episode
	err := r.collection.FindOne(ctx, bson.M{"relationshipId": relationshipID}).Decode(&episode)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &episode, nil
}

// GetByPatientID retrieves a patient's episodes, optionally limited to the
// given statuses, oldest first.
func (r *mongoEpisodeRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID, statuses ...domain.EpisodeStatus) ([]domain.Episode, error) {
	filter := bson.M{"patientId": patientID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}

	var episodes []domain.Episode
	findOptions := options.Find().SetSort(bson.D{{Key: "startDate", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &episodes); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return episodes, nil
}

// UpdateGoals replaces the episode's goals payload.
func (r *mongoEpisodeRepository) UpdateGoals(ctx context.Context, id primitive.ObjectID, goals *domain.GoalsPayload) error {
	update := bson.M{"$set": bson.M{
		"goals":     goals,
		"updatedAt": time.Now().UTC(),
	}}
	return r.updateOne(ctx, id, update)
}

// UpdateStartDate moves the episode's start date (therapist-driven
// rescheduling; never touches status).
func (r *mongoEpisodeRepository) UpdateStartDate(ctx context.Context, id primitive.ObjectID, startDate, expectedEndDate time.Time) error {
	update := bson.M{"$set": bson.M{
		"startDate":       startDate.UTC(),
		"expectedEndDate": expectedEndDate.UTC(),
		"updatedAt":       time.Now().UTC(),
	}}
	return r.updateOne(ctx, id, update)
}

// UpdateDurationWeeks changes the program length. Existing milestones are
// left untouched; ResetToDefaults is the supported regeneration path.
func (r *mongoEpisodeRepository) UpdateDurationWeeks(ctx context.Context, id primitive.ObjectID, durationWeeks int, expectedEndDate time.Time) error {
	update := bson.M{"$set": bson.M{
		"durationWeeks":   durationWeeks,
		"expectedEndDate": expectedEndDate.UTC(),
		"updatedAt":       time.Now().UTC(),
	}}
	return r.updateOne(ctx, id, update)
}

func (r *mongoEpisodeRepository) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureEpisodeIndexes creates necessary indexes for the episodes collection.
func EnsureEpisodeIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// One episode per relationship
			Keys: bson.D{{Key: "relationshipId", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"relationshipId": bson.M{"$exists": true}},
			),
		},
		{
			// Timeline aggregation scans by patient and status
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "therapistId", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
