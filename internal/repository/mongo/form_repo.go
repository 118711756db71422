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

const formCollectionName = "first_session_forms"

// mongoFormRepository implements repository.FirstSessionFormRepository
type mongoFormRepository struct {
	collection *mongo.Collection
}

// NewMongoFormRepository creates a new FirstSessionForm repository backed by MongoDB.
func NewMongoFormRepository(db *mongo.Database) repository.FirstSessionFormRepository {
	return &mongoFormRepository{
		collection: db.Collection(formCollectionName),
	}
}

// Create inserts the intake form for an episode. The unique index on
// episodeId enforces the 1:1 constraint; a second create returns ErrConflict.
func (r *mongoFormRepository) Create(ctx context.Context, form *domain.FirstSessionForm) (primitive.ObjectID, error) {
	if form.EpisodeID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("form requires episodeId")
	}

	form.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	form.CreatedAt = now
	form.UpdatedAt = now
	if form.Status == "" {
		form.Status = domain.FormDraft
	}

	result, err := r.collection.InsertOne(ctx, form)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted form ID")
	}
	return insertedID, nil
}

// GetByID retrieves a form by its ID.
func (r *mongoFormRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.FirstSessionForm, error) {
	var form domain.FirstSessionForm
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&form)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &form, nil
}

// GetByEpisodeID retrieves the form belonging to an episode.
func (r *mongoFormRepository) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (*domain.FirstSessionForm, error) {
	var form domain.FirstSessionForm
	err := r.collection.FindOne(ctx, bson.M{"episodeId": episodeID}).Decode(&form)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &form, nil
}

// Update rewrites the form's sections, status and completion timestamp.
func (r *mongoFormRepository) Update(ctx context.Context, form *domain.FirstSessionForm) error {
	if form.ID == primitive.NilObjectID {
		return errors.New("form ID is required for update")
	}

	update := bson.M{"$set": bson.M{
		"status":           form.Status,
		"basicData":        form.BasicData,
		"performanceTests": form.PerformanceTests,
		"therapyGoals":     form.TherapyGoals,
		"onboarding":       form.Onboarding,
		"initialProgram":   form.InitialProgram,
		"completedAt":      form.CompletedAt,
		"updatedAt":        time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": form.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureFormIndexes creates necessary indexes for the first_session_forms collection.
func EnsureFormIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// 1:1 with the episode
			Keys:    bson.D{{Key: "episodeId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
