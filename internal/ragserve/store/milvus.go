package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/ragserve/pkg/component/milvus"
	"github.com/kart-io/ragserve/pkg/utils/json"
)

// Collection field names.
const (
	fieldID         = "id"
	fieldContent    = "content"
	fieldChunkID    = "chunk_id"
	fieldSourcePath = "source_path"
	fieldChunkOrder = "chunk_order"
	fieldMetadata   = "metadata"
	fieldEmbedding  = "embedding"
	fieldSparse     = "sparse_vector"
)

const (
	maxIDLen       = 512
	maxPathLen     = 1024
	maxContentLen  = 65535
	maxMetadataLen = 65535
)

// MilvusIndex implements SearchIndex on a Milvus collection with a dense
// embedding field and a server-computed BM25 sparse field over the chunk
// content.
type MilvusIndex struct {
	client     *milvus.Client
	collection string
	dimension  int
}

// Compile-time check that MilvusIndex implements SearchIndex.
var _ SearchIndex = (*MilvusIndex)(nil)

// NewMilvusIndex creates a search index over the named collection.
func NewMilvusIndex(client *milvus.Client, collection string, dimension int) *MilvusIndex {
	return &MilvusIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// EnsureCollection creates the chunk collection with its indexes if needed
// and loads it. Idempotent.
func (m *MilvusIndex) EnsureCollection(ctx context.Context) error {
	schema := &milvus.CollectionSchema{
		Name:        m.collection,
		Description: "Embedded document chunks for retrieval",
		PrimaryKey: milvus.MetaField{
			Name:     fieldID,
			DataType: entity.FieldTypeVarChar,
			MaxLen:   maxIDLen,
		},
		ContentField: fieldContent,
		ContentLen:   maxContentLen,
		DenseField:   fieldEmbedding,
		Dimension:    m.dimension,
		SparseField:  fieldSparse,
		MetaFields: []milvus.MetaField{
			{Name: fieldChunkID, DataType: entity.FieldTypeVarChar, MaxLen: maxIDLen},
			{Name: fieldSourcePath, DataType: entity.FieldTypeVarChar, MaxLen: maxPathLen},
			{Name: fieldChunkOrder, DataType: entity.FieldTypeInt64},
			{Name: fieldMetadata, DataType: entity.FieldTypeVarChar, MaxLen: maxMetadataLen},
		},
	}
	return m.client.EnsureCollection(ctx, schema)
}

// Upload indexes a batch of chunk documents. The sparse field is computed
// server-side from the content column, so only the dense vectors are sent.
func (m *MilvusIndex) Upload(ctx context.Context, docs []ChunkDocument) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	chunkIDs := make([]string, len(docs))
	sourcePaths := make([]string, len(docs))
	chunkOrders := make([]int64, len(docs))
	metadatas := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))

	for i, doc := range docs {
		if len(doc.Embedding) != m.dimension {
			return fmt.Errorf("chunk %q embedding has %d dimensions, collection expects %d",
				doc.ID, len(doc.Embedding), m.dimension)
		}

		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for chunk %q: %w", doc.ID, err)
		}

		ids[i] = doc.ID
		contents[i] = doc.Content
		chunkIDs[i] = doc.ChunkID
		sourcePaths[i] = doc.SourcePath
		chunkOrders[i] = doc.ChunkOrder
		metadatas[i] = string(meta)
		embeddings[i] = doc.Embedding
	}

	return m.client.Insert(ctx, m.collection,
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnVarChar(fieldChunkID, chunkIDs),
		column.NewColumnVarChar(fieldSourcePath, sourcePaths),
		column.NewColumnInt64(fieldChunkOrder, chunkOrders),
		column.NewColumnVarChar(fieldMetadata, metadatas),
		column.NewColumnFloatVector(fieldEmbedding, m.dimension, embeddings),
	)
}

// HybridSearch fuses a dense ANN search with a BM25 full-text search over
// the content field and returns the topK hits, best first.
func (m *MilvusIndex) HybridSearch(ctx context.Context, queryText string, queryVector []float32, topK int) ([]SearchHit, error) {
	results, err := m.client.HybridSearch(ctx, &milvus.HybridSearchRequest{
		Collection:  m.collection,
		QueryText:   queryText,
		QueryVector: queryVector,
		TopK:        topK,
		DenseField:  fieldEmbedding,
		SparseField: fieldSparse,
		OutputFields: []string{
			fieldContent,
			fieldChunkID,
			fieldSourcePath,
			fieldChunkOrder,
			fieldMetadata,
		},
	})
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			Score:    float64(r.Score),
			Content:  stringField(r.Fields, fieldContent),
			Metadata: hitMetadata(r.Fields),
		})
	}
	return hits, nil
}

// hitMetadata rebuilds the chunk metadata map from a result row. The JSON
// metadata column provides any extra keys; the scalar columns are
// authoritative for the citation fields.
func hitMetadata(fields map[string]any) map[string]any {
	meta := make(map[string]any)
	if raw := stringField(fields, fieldMetadata); raw != "" {
		// A corrupt metadata column should not fail the whole query.
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	if v := stringField(fields, fieldChunkID); v != "" {
		meta[fieldChunkID] = v
	}
	if v := stringField(fields, fieldSourcePath); v != "" {
		meta[fieldSourcePath] = v
	}
	if v, ok := fields[fieldChunkOrder].(int64); ok {
		meta[fieldChunkOrder] = v
	}
	return meta
}

func stringField(fields map[string]any, name string) string {
	v, _ := fields[name].(string)
	return v
}
