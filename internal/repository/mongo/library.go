package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamgate/internal/domain"
)

// LibraryStore persists per-user saved catalog entries.
type LibraryStore struct {
	collection *mongo.Collection
}

func NewLibraryStore(client *mongo.Client, dbName string) *LibraryStore {
	return &LibraryStore{collection: client.Database(dbName).Collection(libraryCollection)}
}

func (s *LibraryStore) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		// A title appears at most once in a user's library.
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "imdbId", Value: 1}},
			Options: uniqueIndex(),
		},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "addedAt", Value: -1}}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Add saves the item unless the title is already in the user's library,
// in which case the existing entry is kept untouched.
func (s *LibraryStore) Add(ctx context.Context, it domain.LibraryItem) error {
	if err := it.Validate(); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	_, err := s.collection.InsertOne(ctx, it)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

// ListByUser returns the user's library, most recently added first.
func (s *LibraryStore) ListByUser(ctx context.Context, userID string) ([]domain.LibraryItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "addedAt", Value: -1}})
	cur, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]domain.LibraryItem, 0)
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes an entry by its id or by its imdb id, whichever matches.
func (s *LibraryStore) Delete(ctx context.Context, userID, key string) error {
	filter := bson.M{
		"userId": userID,
		"$or":    bson.A{bson.M{"_id": key}, bson.M{"imdbId": key}},
	}
	res, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
