package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamgate/internal/domain"
)

// AddonStore persists per-user addon installations.
type AddonStore struct {
	collection *mongo.Collection
}

func NewAddonStore(client *mongo.Client, dbName string) *AddonStore {
	return &AddonStore{collection: client.Database(dbName).Collection(addonsCollection)}
}

func (s *AddonStore) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		// One installation of a given addon per user.
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "manifest.id", Value: 1}},
			Options: uniqueIndex(),
		},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (s *AddonStore) Insert(ctx context.Context, a domain.Addon) error {
	if err := a.Validate(); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	_, err := s.collection.InsertOne(ctx, a)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

// ListByUser returns the user's addons in installation order.
func (s *AddonStore) ListByUser(ctx context.Context, userID string) ([]domain.Addon, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	addons := make([]domain.Addon, 0)
	if err := cur.All(ctx, &addons); err != nil {
		return nil, err
	}
	return addons, nil
}

func (s *AddonStore) Get(ctx context.Context, userID, id string) (domain.Addon, error) {
	var a domain.Addon
	err := s.collection.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Addon{}, domain.ErrNotFound
		}
		return domain.Addon{}, err
	}
	return a, nil
}

func (s *AddonStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
