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

const milestoneCollectionName = "episode_milestones"

// mongoMilestoneRepository implements repository.MilestoneRepository
type mongoMilestoneRepository struct {
	collection *mongo.Collection
}

// NewMongoMilestoneRepository creates a new Milestone repository backed by MongoDB.
func NewMongoMilestoneRepository(db *mongo.Database) repository.MilestoneRepository {
	return &mongoMilestoneRepository{
		collection: db.Collection(milestoneCollectionName),
	}
}

// Create inserts a single (manually authored) milestone.
func (r *mongoMilestoneRepository) Create(ctx context.Context, milestone *domain.EpisodeMilestone) (primitive.ObjectID, error) {
	if milestone.EpisodeID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("milestone requires episodeId")
	}
	if milestone.TargetWeek < 1 {
		return primitive.NilObjectID, errors.New("milestone requires a 1-based targetWeek")
	}

	milestone.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	milestone.CreatedAt = now
	milestone.UpdatedAt = now
	if milestone.Status == "" {
		milestone.Status = domain.MilestonePending
	}
	if milestone.OrderIndex == 0 {
		milestone.OrderIndex = domain.DefaultOrderIndex(milestone.TargetWeek)
	}

	result, err := r.collection.InsertOne(ctx, milestone)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted milestone ID")
	}
	return insertedID, nil
}

// CreateMany inserts a generated batch. The partial unique index on
// (episodeId, templateId, targetWeek) makes a concurrent double generation
// fail with ErrConflict instead of writing duplicate rows.
func (r *mongoMilestoneRepository) CreateMany(ctx context.Context, milestones []domain.EpisodeMilestone) error {
	if len(milestones) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(milestones))
	for i := range milestones {
		m := &milestones[i]
		m.ID = primitive.NewObjectID()
		m.CreatedAt = now
		m.UpdatedAt = now
		if m.Status == "" {
			m.Status = domain.MilestonePending
		}
		docs = append(docs, m)
	}

	// Ordered insert: on a duplicate nothing after the offending document
	// is written, and the whole batch is rolled back when running inside a
	// transaction.
	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetByID retrieves a milestone by its ID.
func (r *mongoMilestoneRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.EpisodeMilestone, error) {
	var milestone domain.EpisodeMilestone
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&milestone)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &milestone, nil
}

// GetByEpisodeID retrieves all milestones for an episode, sorted by target
// week then order index. Order indexes collide when a recurring instance
// lands on another template's week, so _id breaks ties by insertion order.
func (r *mongoMilestoneRepository) GetByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) ([]domain.EpisodeMilestone, error) {
	var milestones []domain.EpisodeMilestone
	findOptions := options.Find().SetSort(bson.D{
		{Key: "targetWeek", Value: 1},
		{Key: "orderIndex", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, bson.M{"episodeId": episodeID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &milestones); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return milestones, nil
}

// CountByEpisodeID returns the number of milestones an episode already has.
func (r *mongoMilestoneRepository) CountByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"episodeId": episodeID})
}

// FindFirstPending returns the earliest PENDING milestone of the given type
// for the episode.
func (r *mongoMilestoneRepository) FindFirstPending(ctx context.Context, episodeID primitive.ObjectID, milestoneType domain.MilestoneType) (*domain.EpisodeMilestone, error) {
	filter := bson.M{
		"episodeId": episodeID,
		"type":      milestoneType,
		"status":    domain.MilestonePending,
	}
	findOptions := options.FindOne().SetSort(bson.D{
		{Key: "targetWeek", Value: 1},
		{Key: "orderIndex", Value: 1},
		{Key: "_id", Value: 1},
	})

	var milestone domain.EpisodeMilestone
	err := r.collection.FindOne(ctx, filter, findOptions).Decode(&milestone)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &milestone, nil
}

// Update rewrites a milestone's mutable fields.
func (r *mongoMilestoneRepository) Update(ctx context.Context, milestone *domain.EpisodeMilestone) error {
	if milestone.ID == primitive.NilObjectID {
		return errors.New("milestone ID is required for update")
	}

	update := bson.M{"$set": bson.M{
		"name":            milestone.Name,
		"description":     milestone.Description,
		"targetWeek":      milestone.TargetWeek,
		"targetDate":      milestone.TargetDate,
		"status":          milestone.Status,
		"triggerType":     milestone.TriggerType,
		"triggerConfig":   milestone.TriggerConfig,
		"linkedSessionId": milestone.LinkedSessionID,
		"completedAt":     milestone.CompletedAt,
		"orderIndex":      milestone.OrderIndex,
		"updatedAt":       time.Now().UTC(),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": milestone.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a single milestone.
func (r *mongoMilestoneRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByEpisodeID removes every milestone of an episode (reset path).
func (r *mongoMilestoneRepository) DeleteByEpisodeID(ctx context.Context, episodeID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"episodeId": episodeID})
	return err
}

// EnsureMilestoneIndexes creates necessary indexes for the episode_milestones collection.
func EnsureMilestoneIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Closes the check-then-insert race in milestone generation:
			// two concurrent initializations cannot both insert the same
			// (episode, template, week) instance. Partial so that manually
			// authored milestones (no template) are exempt.
			Keys: bson.D{
				{Key: "episodeId", Value: 1},
				{Key: "templateId", Value: 1},
				{Key: "targetWeek", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"templateId": bson.M{"$exists": true}},
			),
		},
		{
			// Listing order within an episode
			Keys:    bson.D{{Key: "episodeId", Value: 1}, {Key: "targetWeek", Value: 1}, {Key: "orderIndex", Value: 1}},
			Options: options.Index(),
		},
		{
			// Baseline lookup by type/status
			Keys:    bson.D{{Key: "episodeId", Value: 1}, {Key: "type", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
