package draft

import (
	"context"

	"github.com/Laisky/errors/v2"
	"go.mongodb.org/mongo-driver/bson"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Laisky/laisky-blog-web/library/db/mongo"
)

const colDrafts = "drafts"

// MongoStore keeps drafts in the drafts collection, one document per owner and key
type MongoStore struct {
	db mongo.DB
}

// NewMongoStore creates a store and makes sure the lookup index exists.
func NewMongoStore(ctx context.Context, db mongo.DB) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("mongo db is nil")
	}

	if _, err := db.GetCol(colDrafts).Indexes().CreateOne(ctx, mongoLib.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, errors.Wrap(err, "create drafts index")
	}

	return &MongoStore{db: db}, nil
}

func draftFilter(owner, key string) bson.M {
	return bson.M{"owner": owner, "key": key}
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, owner, key string) (*Draft, error) {
	d := new(Draft)
	if err := s.db.GetCol(colDrafts).FindOne(ctx, draftFilter(owner, key)).Decode(d); err != nil {
		if mongo.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find draft")
	}

	return d, nil
}

// Put implements Store.
func (s *MongoStore) Put(ctx context.Context, d *Draft) error {
	if _, err := s.db.GetCol(colDrafts).ReplaceOne(ctx,
		draftFilter(d.Owner, d.Key),
		d,
		options.Replace().SetUpsert(true),
	); err != nil {
		return errors.Wrap(err, "upsert draft")
	}

	return nil
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, owner, key string) error {
	if _, err := s.db.GetCol(colDrafts).DeleteOne(ctx, draftFilter(owner, key)); err != nil {
		return errors.Wrap(err, "delete draft")
	}

	return nil
}
