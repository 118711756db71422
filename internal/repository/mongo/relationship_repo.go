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

const relationshipCollectionName = "relationships"

// mongoRelationshipRepository implements repository.RelationshipRepository
type mongoRelationshipRepository struct {
	collection *mongo.Collection
}

// NewMongoRelationshipRepository creates a new Relationship repository backed by MongoDB.
func NewMongoRelationshipRepository(db *mongo.Database) repository.RelationshipRepository {
	return &mongoRelationshipRepository{
		collection: db.Collection(relationshipCollectionName),
	}
}

// Create inserts a new relationship into the database.
func (r *mongoRelationshipRepository) Create(ctx context.Context, rel *domain.Relationship) (primitive.ObjectID, error) {
	if rel.PatientID == primitive.NilObjectID || rel.TherapistID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("relationship requires patientId and therapistId")
	}

	rel.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	rel.CreatedAt = now
	rel.UpdatedAt = now
	if rel.Status == "" {
		rel.Status = domain.RelationshipPendingPayment
	}

	result, err := r.collection.InsertOne(ctx, rel)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted relationship ID")
	}
	return insertedID, nil
}

// GetByID retrieves a relationship by its ID.
func (r *mongoRelationshipRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Relationship, error) {
	var rel domain.Relationship
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rel, nil
}

// GetByPatientAndTherapist retrieves the unique relationship for a pairing.
func (r *mongoRelationshipRepository) GetByPatientAndTherapist(ctx context.Context, patientID, therapistID primitive.ObjectID) (*domain.Relationship, error) {
	filter := bson.M{"patientId": patientID, "therapistId": therapistID}

	var rel domain.Relationship
	err := r.collection.FindOne(ctx, filter).Decode(&rel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rel, nil
}

// GetByPatientID retrieves all relationships for a patient, newest first.
func (r *mongoRelationshipRepository) GetByPatientID(ctx context.Context, patientID primitive.ObjectID) ([]domain.Relationship, error) {
	return r.find(ctx, bson.M{"patientId": patientID})
}

// GetByTherapistID retrieves all relationships for a therapist, newest first.
func (r *mongoRelationshipRepository) GetByTherapistID(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Relationship, error) {
	return r.find(ctx, bson.M{"therapistId": therapistID})
}

func (r *mongoRelationshipRepository) find(ctx context.Context, filter bson.M) ([]domain.Relationship, error) {
	var rels []domain.Relationship
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return rels, nil
}

// TransitionStatus moves the relationship from one status to another as a
// compare-and-set: the filter includes the required current status, so a
// concurrent transition makes this a no-match (ErrUpdateFailed) instead of
// a silent double write.
func (r *mongoRelationshipRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to domain.RelationshipStatus) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{
		"status":    to,
		"updatedAt": time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrUpdateFailed
	}
	return nil
}

// ScheduleMeeting sets the SCHEDULED_FIRST_MEETING status together with the
// meeting timestamp in one guarded write.
func (r *mongoRelationshipRepository) ScheduleMeeting(ctx context.Context, id primitive.ObjectID, from domain.RelationshipStatus, when time.Time) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{
		"status":      domain.RelationshipScheduledMeeting,
		"scheduledAt": when.UTC(),
		"updatedAt":   time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrUpdateFailed
	}
	return nil
}

// UpdateScheduledAt rewrites the meeting time only; the status filter keeps
// the write guarded on the relationship still being in requiredStatus.
func (r *mongoRelationshipRepository) UpdateScheduledAt(ctx context.Context, id primitive.ObjectID, requiredStatus domain.RelationshipStatus, when time.Time) error {
	filter := bson.M{"_id": id, "status": requiredStatus}
	update := bson.M{"$set": bson.M{
		"scheduledAt": when.UTC(),
		"updatedAt":   time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrUpdateFailed
	}
	return nil
}

// EnsureRelationshipIndexes creates necessary indexes for the relationships collection.
func EnsureRelationshipIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// One relationship per patient-therapist pairing
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "therapistId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "therapistId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
