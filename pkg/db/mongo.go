package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cyber-digest/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMongoDatabase   = "cyberdigest"
	defaultMongoCollection = "articles"
)

// ErrUndecodable is returned by All when some documents do not decode as records
var ErrUndecodable = errors.New("undecodable records")

// MongoConfig holds the Mongo connection settings
type MongoConfig struct {
	URI string
	// Database defaults to the URI path or "cyberdigest"
	Database   string
	Collection string
}

// MongoStore keeps records in a collection with a unique index on url
type MongoStore struct {
	mongoClient *mongo.Client
	collection  *mongo.Collection
}

// OpenMongo connects, pings and ensures the url index
func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = databaseFromURI(cfg.URI)
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultMongoCollection
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		_ = mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := &MongoStore{
		mongoClient: mongoClient,
		collection:  mongoClient.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = mongoClient.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func databaseFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(parsed.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Contains(ctx context.Context, url string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"url": url}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count url %q: %w", url, err)
	}
	return n > 0, nil
}

// Record upserts with $setOnInsert so an existing row is never rewritten
func (s *MongoStore) Record(ctx context.Context, rec domain.Record) (bool, error) {
	if rec.URL == "" {
		return false, fmt.Errorf("record without url")
	}

	filter := bson.M{"url": rec.URL}
	update := bson.M{"$setOnInsert": rec}
	res, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// lost an upsert race against another writer
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert url=%q: %w", rec.URL, err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *MongoStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"date": bson.M{"$lt": cutoffDate(before)}})
	if err != nil {
		return 0, fmt.Errorf("prune articles: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) All(ctx context.Context) ([]domain.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "url", Value: 1}}).
		SetProjection(bson.M{"_id": 0})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer cursor.Close(ctx)

	var (
		out       []domain.Record
		undecoded int
		firstErr  error
	)
	for cursor.Next(ctx) {
		var rec domain.Record
		if err := cursor.Decode(&rec); err != nil {
			undecoded++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if rec.URL != "" {
			out = append(out, rec)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	if undecoded > 0 {
		return nil, fmt.Errorf("%w: %d documents in %s: %w", ErrUndecodable, undecoded, s.collection.Name(), firstErr)
	}
	return out, nil
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	if s.mongoClient == nil {
		return nil
	}
	return s.mongoClient.Disconnect(ctx)
}
