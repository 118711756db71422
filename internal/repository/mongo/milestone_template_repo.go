package mongo

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const milestoneTemplateCollectionName = "milestone_templates"

// mongoMilestoneTemplateRepository implements repository.MilestoneTemplateRepository
type mongoMilestoneTemplateRepository struct {
	collection *mongo.Collection
}

// NewMongoMilestoneTemplateRepository creates a new MilestoneTemplate repository backed by MongoDB.
func NewMongoMilestoneTemplateRepository(db *mongo.Database) repository.MilestoneTemplateRepository {
	return &mongoMilestoneTemplateRepository{
		collection: db.Collection(milestoneTemplateCollectionName),
	}
}

// UpsertByKey inserts or refreshes a template identified by its stable key.
// Used at startup to seed the system-default catalog; templates are never
// generated from user input.
func (r *mongoMilestoneTemplateRepository) UpsertByKey(ctx context.Context, template *domain.MilestoneTemplate) error {
	now := time.Now().UTC()
	filter := bson.M{"key": template.Key}
	update := bson.M{
		"$set": bson.M{
			"type":            template.Type,
			"name":            template.Name,
			"description":     template.Description,
			"defaultWeek":     template.DefaultWeek,
			"isRecurring":     template.IsRecurring,
			"recurrenceWeeks": template.RecurrenceWeeks,
			"triggerType":     template.TriggerType,
			"triggerConfig":   template.TriggerConfig,
			"discipline":      template.Discipline,
			"isSystemDefault": template.IsSystemDefault,
			"updatedAt":       now,
		},
		"$setOnInsert": bson.M{
			"key":       template.Key,
			"createdAt": now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// GetSystemDefaults returns the default templates applicable to the given
// discipline (discipline-agnostic templates always match), ordered by
// default week ascending.
func (r *mongoMilestoneTemplateRepository) GetSystemDefaults(ctx context.Context, discipline *domain.Discipline) ([]domain.MilestoneTemplate, error) {
	filter := bson.M{"isSystemDefault": true}
	if discipline != nil {
		filter["$or"] = bson.A{
			bson.M{"discipline": nil},
			bson.M{"discipline": bson.M{"$exists": false}},
			bson.M{"discipline": *discipline},
		}
	}

	var templates []domain.MilestoneTemplate
	findOptions := options.Find().SetSort(bson.D{{Key: "defaultWeek", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

// EnsureMilestoneTemplateIndexes creates necessary indexes for the milestone_templates collection.
func EnsureMilestoneTemplateIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "isSystemDefault", Value: 1}, {Key: "defaultWeek", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
