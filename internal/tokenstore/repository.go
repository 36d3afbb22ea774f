package tokenstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository provides persistence for the single credential document.
type Repository interface {
	Load(ctx context.Context) (*Record, error)
	// MergeAccessToken replaces the access-token pair without touching the
	// refresh token; creates the document when absent.
	MergeAccessToken(ctx context.Context, at *AccessToken) error
	// SetRefreshToken overwrites the refresh token; creates the document when absent.
	SetRefreshToken(ctx context.Context, token string) error
	// ClearAccessToken removes the access-token field, leaving the rest intact.
	ClearAccessToken(ctx context.Context) error
}

// MongoRepository implements Repository against a Mongo collection holding
// exactly one document.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Load(ctx context.Context) (*Record, error) {
	var rec Record
	if err := r.col.FindOne(ctx, bson.M{"_id": DocumentID}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) MergeAccessToken(ctx context.Context, at *AccessToken) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"access_token": at, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateByID(ctx, DocumentID, update, opts)
	return err
}

func (r *MongoRepository) SetRefreshToken(ctx context.Context, token string) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"refresh_token": token, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateByID(ctx, DocumentID, update, opts)
	return err
}

func (r *MongoRepository) ClearAccessToken(ctx context.Context) error {
	update := bson.M{
		"$unset": bson.M{"access_token": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}
	_, err := r.col.UpdateByID(ctx, DocumentID, update)
	return err
}
