// Package mongodb exposes a document database to the agent: collection
// listing, schema inference from sampled documents, and find / aggregate /
// count execution. Driver failures surface as *ExecutionError so callers
// can tell an engine rejection apart from a pipeline validation failure.
package mongodb

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExecutionError wraps an error returned by the query engine or driver. It
// is deliberately opaque: bad collection names, type mismatches and engine
// syntax errors all end up here, distinct from validation errors raised
// before execution.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("mongo %s: %v", e.Op, e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// FieldInfo describes one inferred field of a collection.
type FieldInfo struct {
	Name    string   `json:"name"`
	Types   []string `json:"types"`
	Example string   `json:"example,omitempty"`
}

// SchemaMetadata is an inferred collection schema.
type SchemaMetadata struct {
	Collection    string      `json:"collection"`
	DocumentCount int64       `json:"document_count"`
	Fields        []FieldInfo `json:"fields"`
}

// QueryResult carries the documents of a find or aggregate.
type QueryResult struct {
	Documents []map[string]any `json:"documents"`
	Count     int              `json:"count"`
}

// Source is a handle to one Mongo database, constructed explicitly and
// injected rather than held in process-wide state.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to MongoDB and verifies the connection.
func Open(ctx context.Context, uri, dbName string) (*Source, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &Source{client: client, db: client.Database(dbName)}, nil
}

// NewSource wraps an existing client, for tests and external pools.
func NewSource(client *mongo.Client, dbName string) *Source {
	return &Source{client: client, db: client.Database(dbName)}
}

func (s *Source) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// ListCollections lists the collections of the database.
func (s *Source) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, &ExecutionError{Op: "list_collections", Err: err}
	}
	sort.Strings(names)
	return names, nil
}

// InferSchema samples up to sampleSize documents and reports the union of
// field names with the set of value types observed for each.
func (s *Source) InferSchema(ctx context.Context, collection string, sampleSize int) (*SchemaMetadata, error) {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	coll := s.db.Collection(collection)

	count, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, &ExecutionError{Op: "count", Err: err}
	}

	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(int64(sampleSize)))
	if err != nil {
		return nil, &ExecutionError{Op: "find", Err: err}
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &ExecutionError{Op: "find", Err: err}
	}

	fields := map[string]*FieldInfo{}
	for _, doc := range docs {
		for name, value := range doc {
			if name == "_id" {
				continue
			}
			info, ok := fields[name]
			if !ok {
				info = &FieldInfo{Name: name, Example: fmt.Sprintf("%.80v", Normalize(value))}
				fields[name] = info
			}
			tn := typeName(value)
			seen := false
			for _, existing := range info.Types {
				if existing == tn {
					seen = true
					break
				}
			}
			if !seen {
				info.Types = append(info.Types, tn)
			}
		}
	}

	meta := &SchemaMetadata{Collection: collection, DocumentCount: count}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		meta.Fields = append(meta.Fields, *fields[name])
	}
	return meta, nil
}

// Find runs a find query. sortSpec is an ordered list of [field, direction]
// pairs, matching the shape the LLM is prompted to emit.
func (s *Source) Find(ctx context.Context, collection string, filter map[string]any, projection map[string]any, sortSpec [][2]any, limit int) (*QueryResult, error) {
	opts := options.Find()
	if projection != nil {
		opts.SetProjection(toDocument(projection))
	}
	if len(sortSpec) > 0 {
		sortDoc := bson.D{}
		for _, pair := range sortSpec {
			field, _ := pair[0].(string)
			sortDoc = append(sortDoc, bson.E{Key: field, Value: pair[1]})
		}
		opts.SetSort(sortDoc)
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if filter == nil {
		filter = map[string]any{}
	}

	cursor, err := s.db.Collection(collection).Find(ctx, toDocument(filter), opts)
	if err != nil {
		return nil, &ExecutionError{Op: "find", Err: err}
	}
	return collect(ctx, cursor)
}

// Aggregate runs an aggregation pipeline. Callers are expected to have
// repaired and validated the pipeline already; anything the engine still
// rejects comes back as an ExecutionError.
func (s *Source) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) (*QueryResult, error) {
	stages := make([]any, 0, len(pipeline))
	for _, stage := range pipeline {
		stages = append(stages, toDocument(stage))
	}
	cursor, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, &ExecutionError{Op: "aggregate", Err: err}
	}
	return collect(ctx, cursor)
}

// Count counts documents matching filter.
func (s *Source) Count(ctx context.Context, collection string, filter map[string]any) (int64, error) {
	if filter == nil {
		filter = map[string]any{}
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, toDocument(filter))
	if err != nil {
		return 0, &ExecutionError{Op: "count", Err: err}
	}
	return n, nil
}

func collect(ctx context.Context, cursor *mongo.Cursor) (*QueryResult, error) {
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, &ExecutionError{Op: "cursor", Err: err}
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, doc := range raw {
		docs = append(docs, NormalizeDocument(doc))
	}
	return &QueryResult{Documents: docs, Count: len(docs)}, nil
}
