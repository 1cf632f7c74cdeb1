package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"streamgate/internal/domain"
)

// UserStore persists user accounts.
type UserStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

func NewUserStore(client *mongo.Client, dbName string, logger *slog.Logger) *UserStore {
	return &UserStore{
		collection: client.Database(dbName).Collection(usersCollection),
		logger:     logger,
	}
}

func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: uniqueIndex(),
		},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (s *UserStore) Insert(ctx context.Context, u domain.User) error {
	if err := u.Validate(); err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	_, err := s.collection.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (s *UserStore) FindByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	if err := s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context) ([]domain.User, error) {
	cur, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	users := make([]domain.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Update replaces the mutable fields of an existing user. The password
// hash is only touched when the caller supplies a new one.
func (s *UserStore) Update(ctx context.Context, u domain.User) error {
	set := bson.M{
		"username": u.Username,
		"isAdmin":  u.IsAdmin,
	}
	if u.PasswordHash != "" {
		set["passwordHash"] = u.PasswordHash
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BootstrapAdmin creates the initial admin account when the users
// collection is empty. Credentials come from configuration; when either
// one is missing the bootstrap is skipped with a warning so a fresh
// deployment is never left with a well-known login.
func (s *UserStore) BootstrapAdmin(ctx context.Context, username, password string) error {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if username == "" || password == "" {
		s.logger.Warn("users collection is empty and no admin credentials configured, skipping bootstrap")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Insert(ctx, admin); err != nil {
		// Lost a race against a concurrent bootstrap; the account exists.
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return err
	}
	s.logger.Info("bootstrapped admin account", slog.String("username", username))
	return nil
}
