package connector

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoSource reads whole collections from a MongoDB database. Each
// collection becomes one destination table.
type mongoSource struct {
	uri        string
	database   string
	tableNames []string
	batchSize  int
	client     *mongo.Client
}

func newMongoSource(config Config, pc *PipelineConfig, batchSize int) (*mongoSource, error) {
	uri := MongoURI(config)
	database := config.stringVal("database")
	if database == "" {
		return nil, NewConfigError("mongodb source requires 'database'")
	}
	return &mongoSource{
		uri:        uri,
		database:   database,
		tableNames: pc.TableNames,
		batchSize:  batchSize,
	}, nil
}

func (m *mongoSource) Read(ctx context.Context, sink Sink) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return errors.Wrap(err, "failed to connect to mongodb")
	}
	m.client = client

	db := client.Database(m.database)
	collections, err := m.resolveCollections(ctx, db)
	if err != nil {
		return err
	}
	for _, name := range collections {
		if err := m.readCollection(ctx, db.Collection(name), sink); err != nil {
			return errors.Wrapf(err, "failed reading collection %s", name)
		}
	}
	return nil
}

func (m *mongoSource) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(context.Background())
}

func (m *mongoSource) resolveCollections(ctx context.Context, db *mongo.Database) ([]string, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collections")
	}
	if len(m.tableNames) == 0 {
		return names, nil
	}
	allowed := make(map[string]bool, len(m.tableNames))
	for _, n := range m.tableNames {
		allowed[n] = true
	}
	var filtered []string
	for _, n := range names {
		if allowed[n] {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

func (m *mongoSource) readCollection(ctx context.Context, coll *mongo.Collection, sink Sink) error {
	opts := options.Find().SetBatchSize(int32(m.batchSize))
	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	rows := make([]Row, 0, m.batchSize)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return errors.Wrap(err, "failed to decode document")
		}
		rows = append(rows, normalizeBSON(doc))
		if len(rows) >= m.batchSize {
			if err := sink(ctx, Batch{Table: coll.Name(), Rows: rows}); err != nil {
				return err
			}
			rows = make([]Row, 0, m.batchSize)
		}
	}
	if err := cursor.Err(); err != nil {
		return errors.Wrap(err, "cursor error")
	}
	if len(rows) > 0 {
		return sink(ctx, Batch{Table: coll.Name(), Rows: rows})
	}
	return nil
}

// normalizeBSON flattens driver types into plain values the generic
// destinations can store.
func normalizeBSON(doc bson.M) Row {
	row := make(Row, len(doc))
	for k, v := range doc {
		row[k] = normalizeBSONValue(v)
	}
	return row
}

func normalizeBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time()
	case primitive.Decimal128:
		return val.String()
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeBSONValue(item)
		}
		return out
	case bson.M:
		return map[string]interface{}(normalizeBSON(val))
	default:
		return v
	}
}
