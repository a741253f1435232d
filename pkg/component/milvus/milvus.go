// Package milvus provides the Milvus vector database component.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/ragserve/pkg/component/storage"
	milvusopts "github.com/kart-io/ragserve/pkg/options/milvus"
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Name returns the storage type identifier.
// Implements storage.Client interface.
func (c *Client) Name() string {
	return "milvus"
}

// Ping checks if the connection to Milvus is alive.
// Implements storage.Client interface.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.GetServerVersion(ctx, milvusclient.NewGetServerVersionOption())
	return err
}

// Close closes the Milvus client connection.
// Implements storage.Client interface.
func (c *Client) Close() error {
	return c.client.Close(context.Background())
}

// Health returns a HealthChecker function for Milvus health monitoring.
// Implements storage.Client interface.
func (c *Client) Health() storage.HealthChecker {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return c.Ping(ctx)
	}
}

// RawClient returns the underlying Milvus client.
func (c *Client) RawClient() *milvusclient.Client {
	return c.client
}

// MetaField defines a metadata field in the collection.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // For VARCHAR type
}

// CollectionSchema defines the schema for a hybrid-search collection:
// an explicit VarChar primary key, a dense embedding field, and a BM25
// sparse field derived from the content field by the server.
type CollectionSchema struct {
	Name        string
	Description string

	// PrimaryKey is a caller-supplied VarChar key (no AutoID).
	PrimaryKey MetaField

	// ContentField holds the raw chunk text. The analyzer is enabled so
	// the BM25 function can tokenize it into SparseField.
	ContentField string
	ContentLen   int

	// DenseField and Dimension describe the embedding vector field.
	DenseField string
	Dimension  int

	// SparseField receives the server-computed BM25 representation.
	SparseField string

	MetaFields []MetaField
}

// EnsureCollection creates the collection, its indexes and the BM25 function
// if it does not exist yet, and loads it into memory. It is idempotent.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		collSchema := entity.NewSchema().
			WithName(schema.Name).
			WithDescription(schema.Description)

		collSchema.WithField(
			entity.NewField().
				WithName(schema.PrimaryKey.Name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(int64(schema.PrimaryKey.MaxLen)).
				WithIsPrimaryKey(true),
		)

		collSchema.WithField(
			entity.NewField().
				WithName(schema.ContentField).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(int64(schema.ContentLen)).
				WithEnableAnalyzer(true),
		)

		collSchema.WithField(
			entity.NewField().
				WithName(schema.DenseField).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(schema.Dimension)),
		)

		collSchema.WithField(
			entity.NewField().
				WithName(schema.SparseField).
				WithDataType(entity.FieldTypeSparseVector),
		)

		for _, f := range schema.MetaFields {
			field := entity.NewField().
				WithName(f.Name).
				WithDataType(f.DataType)
			if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
				field.WithMaxLength(int64(f.MaxLen))
			}
			collSchema.WithField(field)
		}

		// Server-side BM25: content tokens feed the sparse field.
		collSchema.WithFunction(
			entity.NewFunction().
				WithName(schema.ContentField + "_bm25").
				WithType(entity.FunctionTypeBM25).
				WithInputFields(schema.ContentField).
				WithOutputFields(schema.SparseField),
		)

		if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		denseIdx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		denseTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, schema.DenseField, denseIdx))
		if err != nil {
			return fmt.Errorf("failed to create dense index: %w", err)
		}
		if err := denseTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for dense index creation: %w", err)
		}

		sparseIdx := index.NewSparseInvertedIndex(entity.BM25, 0.2)
		sparseTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, schema.SparseField, sparseIdx))
		if err != nil {
			return fmt.Errorf("failed to create sparse index: %w", err)
		}
		if err := sparseTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for sparse index creation: %w", err)
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// Insert writes prepared columns into the collection and flushes so the
// rows become visible to searches immediately.
// Note: frequent flushing hurts throughput, but ingestion jobs expect
// read-your-writes behavior.
func (c *Client) Insert(ctx context.Context, collectionName string, columns ...column.Column) error {
	if _, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...)); err != nil {
		return fmt.Errorf("failed to insert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}

	return nil
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID     string
	Score  float32
	Fields map[string]any
}

// HybridSearchRequest describes one fused dense/full-text search.
type HybridSearchRequest struct {
	Collection   string
	QueryText    string
	QueryVector  []float32
	TopK         int
	DenseField   string
	SparseField  string
	OutputFields []string
}

// HybridSearch runs a dense ANN request and a BM25 full-text request and
// fuses the two rankings with RRF.
func (c *Client) HybridSearch(ctx context.Context, req *HybridSearchRequest) ([]SearchResult, error) {
	denseReq := milvusclient.NewAnnRequest(req.DenseField, req.TopK, entity.FloatVector(req.QueryVector)).
		WithSearchParam("ef", "64")
	sparseReq := milvusclient.NewAnnRequest(req.SparseField, req.TopK, entity.Text(req.QueryText))

	results, err := c.client.HybridSearch(ctx, milvusclient.NewHybridSearchOption(
		req.Collection,
		req.TopK,
		denseReq,
		sparseReq,
	).WithReranker(milvusclient.NewRRFReranker()).
		WithOutputFields(req.OutputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to hybrid search: %w", err)
	}

	return parseResults(results)
}

// Search performs a dense-only vector similarity search.
func (c *Client) Search(ctx context.Context, collectionName, denseField string, vector []float32, topK int, outputFields []string) ([]SearchResult, error) {
	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		collectionName,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(denseField).
		WithSearchParam("ef", "64").
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	return parseResults(results)
}

func parseResults(results []milvusclient.ResultSet) ([]SearchResult, error) {
	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	rs := results[0]
	searchResults := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		result := SearchResult{
			Score:  rs.Scores[i],
			Fields: make(map[string]any),
		}

		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
			result.ID = idCol.Data()[i]
		}

		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				result.Fields[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				result.Fields[col.Name()] = col.Data()[i]
			}
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// DeleteByIDs deletes rows by their string primary keys.
func (c *Client) DeleteByIDs(ctx context.Context, collectionName, pkField string, ids []string) error {
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collectionName).WithStringIDs(pkField, ids)); err != nil {
		return fmt.Errorf("failed to delete by ids: %w", err)
	}
	return nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collectionName)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
