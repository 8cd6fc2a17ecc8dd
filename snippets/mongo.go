package snippets

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
)

const (
	defaultMongoDatabase  = "kodespace"
	defaultConnectTimeout = 10 * time.Second
)

type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     types.Logger
}

// NewMongoRepository connects lazily; the first operation or Ping dials the
// server.
func NewMongoRepository(ctx context.Context, config *types.MongoStorageConfig, logger types.Logger) (*MongoRepository, error) {
	if config.URI == "" {
		return nil, types.Errorf(types.ErrInvalidParameter, "storage.mongo.uri is required")
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	database := config.Database
	if database == "" {
		database = defaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, types.WrapError(types.ErrStorageConnectionFailed, err.Error())
	}

	logger.Info("Mongo snippet storage configured", zap.String("database", database))

	return &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}, nil
}

func (r *MongoRepository) Create(ctx context.Context, snippet *Snippet) error {
	if _, err := r.collection.InsertOne(ctx, snippet); err != nil {
		return types.WrapError(err, "failed to insert snippet")
	}
	return nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*Snippet, error) {
	snippet := &Snippet{}

	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(snippet)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.Errorf(types.ErrRecordNotFound, "snippet %s", id)
	}
	if err != nil {
		return nil, types.WrapError(err, "failed to find snippet")
	}

	return snippet, nil
}

func (r *MongoRepository) List(ctx context.Context, filter Filter) ([]*Snippet, int, error) {
	query := mongoFilter(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to count snippets")
	}

	cursor, err := r.collection.Find(ctx, query, findOptions(filter))
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to list snippets")
	}

	list := make([]*Snippet, 0, filter.Limit)
	if err := cursor.All(ctx, &list); err != nil {
		return nil, 0, types.WrapError(err, "failed to decode snippets")
	}

	return list, int(total), nil
}

func (r *MongoRepository) Update(ctx context.Context, snippet *Snippet) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": snippet.ID}, snippet)
	if err != nil {
		return types.WrapError(err, "failed to update snippet")
	}

	if result.MatchedCount == 0 {
		return types.Errorf(types.ErrRecordNotFound, "snippet %s", snippet.ID)
	}

	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return types.WrapError(err, "failed to delete snippet")
	}

	if result.DeletedCount == 0 {
		return types.Errorf(types.ErrRecordNotFound, "snippet %s", id)
	}

	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return types.WrapError(types.ErrStorageConnectionFailed, err.Error())
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	if err := r.client.Disconnect(ctx); err != nil {
		return types.WrapError(err, "failed to disconnect from mongo")
	}

	r.logger.Info("Mongo snippet storage closed")
	return nil
}

func mongoFilter(filter Filter) bson.M {
	query := bson.M{}

	if filter.Language != "" {
		query["language"] = filter.Language
	}
	if filter.Tag != "" {
		query["tags"] = filter.Tag
	}
	if filter.AuthorID != "" {
		query["authorId"] = filter.AuthorID
	}
	if filter.Verified != nil {
		query["verified"] = *filter.Verified
	}
	if filter.Search != "" {
		query["title"] = bson.M{"$regex": regexp.QuoteMeta(filter.Search), "$options": "i"}
	}

	return query
}

func findOptions(filter Filter) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})

	if filter.Offset > 0 {
		opts = opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}

	return opts
}
