package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/accountd/accountd/internal/model"
)

// accountsCollection is the single collection this service persists to.
const accountsCollection = "accounts"

// Common errors for account repository operations.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account already exists")
)

func (r *Repository) accounts() *mongo.Collection {
	return r.db.Collection(accountsCollection)
}

// EnsureAccountIndexes creates unique indexes on email and username.
// The application-level duplicate checks are best-effort; these indexes
// are the real uniqueness guarantee under concurrent signups.
func (r *Repository) EnsureAccountIndexes(ctx context.Context) error {
	_, err := r.accounts().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

// FindByEmail retrieves an account by its email address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByUsername retrieves an account by its username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

// FindByUsernameOrEmail retrieves an account whose username or email
// matches the given identifier.
func (r *Repository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{
		"$or": bson.A{
			bson.M{"username": identifier},
			bson.M{"email": identifier},
		},
	})
}

// Insert persists a new account and returns the stored record with its
// store-assigned id. A unique index violation yields ErrDuplicateAccount.
func (r *Repository) Insert(ctx context.Context, account *model.Account) (*model.Account, error) {
	res, err := r.accounts().InsertOne(ctx, account)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	account.ID = id

	return account, nil
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	var account model.Account
	err := r.accounts().FindOne(ctx, filter).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}
