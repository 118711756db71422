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

const treatmentPlanCollectionName = "treatment_plans"

// mongoTreatmentPlanRepository implements repository.TreatmentPlanRepository
type mongoTreatmentPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoTreatmentPlanRepository creates a new TreatmentPlan repository backed by MongoDB.
func NewMongoTreatmentPlanRepository(db *mongo.Database) repository.TreatmentPlanRepository {
	return &mongoTreatmentPlanRepository{
		collection: db.Collection(treatmentPlanCollectionName),
	}
}

// Create inserts a new treatment plan. When the plan is flagged active, any
// previously active plan for the episode is demoted first so the episode
// keeps at most one active plan.
func (r *mongoTreatmentPlanRepository) Create(ctx context.Context, plan *domain.TreatmentPlan) (primitive.ObjectID, error) {
	if plan.EpisodeID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("treatment plan requires episodeId")
	}
	if plan.Name == "" {
		return primitive.NilObjectID, errors.New("treatment plan requires a name")
	}

	now := time.Now().UTC()
	if plan.IsActive {
		_, err := r.collection.UpdateMany(ctx,
			bson.M{"episodeId": plan.EpisodeID, "isActive": true},
			bson.M{"$set": bson.M{"isActive": false, "updatedAt": now}},
		)
		if err != nil {
			return primitive.NilObjectID, err
		}
	}

	plan.ID = primitive.NewObjectID()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, plan)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted plan ID")
	}
	return insertedID, nil
}

// GetByID retrieves a plan by its ID.
func (r *mongoTreatmentPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TreatmentPlan, error) {
	var plan domain.TreatmentPlan
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// GetActiveByEpisodeID retrieves the plan currently in effect for an episode.
func (r *mongoTreatmentPlanRepository) GetActiveByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (*domain.TreatmentPlan, error) {
	filter := bson.M{"episodeId": episodeID, "isActive": true}

	var plan domain.TreatmentPlan
	err := r.collection.FindOne(ctx, filter).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// GetByEpisodeID retrieves all plans for an episode, newest first.
func (r *mongoTreatmentPlanRepository) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.TreatmentPlan, error) {
	var plans []domain.TreatmentPlan
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"episodeId": episodeID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

// EnsureTreatmentPlanIndexes creates necessary indexes for the treatment_plans collection.
func EnsureTreatmentPlanIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "episodeId", Value: 1}, {Key: "isActive", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "patientId", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
