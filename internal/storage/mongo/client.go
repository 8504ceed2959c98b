package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"filmetl/internal/config"
	"filmetl/internal/dataset"
)

const (
	connectTimeout         = 10 * time.Second
	serverSelectionTimeout = 10 * time.Second
)

// Client is a connected document store handle scoped to one database.
type Client struct {
	DB *mongo.Database
	c  *mongo.Client
}

// NewClient connects to cfg's MongoDB endpoint and pings the primary.
// A client that cannot reach or authenticate against the server is closed
// before the error is returned.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	cl, err := mongo.Connect(ctx, clientOptions(cfg))
	if err != nil {
		return nil, err
	}
	if err := cl.Ping(ctx, readpref.Primary()); err != nil {
		_ = cl.Disconnect(context.Background())
		return nil, err
	}
	return &Client{DB: cl.Database(cfg.Database), c: cl}, nil
}

// clientOptions always carries the configured credential. An empty
// MONGODB_USER is passed through and rejected by the driver rather than
// silently connecting without authentication.
func clientOptions(cfg *config.Config) *options.ClientOptions {
	return options.Client().
		SetHosts([]string{cfg.MongoHost()}).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetAuth(options.Credential{
			Username: cfg.MongoUser,
			Password: cfg.MongoPassword,
		})
}

// Close disconnects the underlying client, if any.
func (c *Client) Close(ctx context.Context) error {
	if c.c == nil {
		return nil
	}
	return c.c.Disconnect(ctx)
}

// InsertTable appends every row of t to collection as one document and
// returns the number of documents inserted. Existing documents are kept.
func (c *Client) InsertTable(ctx context.Context, collection string, t dataset.Table) (int, error) {
	if t.Len() == 0 {
		return 0, nil
	}
	res, err := c.DB.Collection(collection).InsertMany(ctx, Documents(t), options.InsertMany().SetOrdered(true))
	if err != nil {
		return 0, err
	}
	return len(res.InsertedIDs), nil
}

// Documents converts t to ordered BSON documents, one per row, keyed by
// column name. Null cells are stored as BSON null.
func Documents(t dataset.Table) []interface{} {
	recs := t.Records()
	docs := make([]interface{}, len(recs))
	for i, rec := range recs {
		d := make(bson.D, len(rec))
		for j, f := range rec {
			d[j] = bson.E{Key: f.Key, Value: f.Value}
		}
		docs[i] = d
	}
	return docs
}
