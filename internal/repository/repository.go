// Package repository provides the MongoDB persistence layer.
package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Repository provides document store access methods.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and returns a Repository bound to the named database.
func New(ctx context.Context, mongoURL, databaseName string) (*Repository, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Repository{
		client: client,
		db:     client.Database(databaseName),
	}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Database returns the underlying database handle.
// Use sparingly - prefer adding methods to Repository.
func (r *Repository) Database() *mongo.Database {
	return r.db
}
