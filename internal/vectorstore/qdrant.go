package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys attached to every point. chunk_index and file_name feed
// source attribution on chat answers.
const (
	payloadDocumentID = "document_id"
	payloadContent    = "content"
	payloadChunkIndex = "chunk_index"
	payloadFileName   = "file_name"
)

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// CreateCollection creates the namespace with cosine distance.
func (s *QdrantStore) CreateCollection(ctx context.Context, namespace string, dimension int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: namespace,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// DeleteCollection deletes a namespace.
func (s *QdrantStore) DeleteCollection(ctx context.Context, namespace string) error {
	if err := s.client.DeleteCollection(ctx, namespace); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return nil
}

// CollectionExists checks if a namespace exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, namespace string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}

	return exists, nil
}

// Upsert inserts or updates chunks in the namespace.
func (s *QdrantStore) Upsert(ctx context.Context, namespace string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]*qdrant.Value{
			payloadDocumentID: qdrant.NewValueString(chunk.DocumentID),
			payloadContent:    qdrant.NewValueString(chunk.Content),
			payloadChunkIndex: qdrant.NewValueInt(int64(chunk.Index)),
		}
		for k, v := range chunk.Metadata {
			payload[k] = qdrant.NewValueString(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Payload: payload,
			Vectors: qdrant.NewVectors(chunk.Vector...),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// Search performs dense similarity search with a score threshold.
func (s *QdrantStore) Search(ctx context.Context, namespace string, vector []float32, topK int, minScore float32) ([]SearchResult, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(float32(minScore)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		results = append(results, resultFromPoint(point))
	}

	return results, nil
}

func resultFromPoint(point *qdrant.ScoredPoint) SearchResult {
	result := SearchResult{
		ID:       point.Id.GetUuid(),
		Score:    point.Score,
		Metadata: make(map[string]string),
	}

	payload := point.Payload
	if payload == nil {
		return result
	}

	if docID, ok := payload[payloadDocumentID]; ok {
		result.DocumentID = docID.GetStringValue()
	}
	if content, ok := payload[payloadContent]; ok {
		result.Content = content.GetStringValue()
	}
	if idx, ok := payload[payloadChunkIndex]; ok {
		result.ChunkIndex = int(idx.GetIntegerValue())
	}
	if name, ok := payload[payloadFileName]; ok {
		result.FileName = name.GetStringValue()
	}
	for k, v := range payload {
		switch k {
		case payloadDocumentID, payloadContent, payloadChunkIndex, payloadFileName:
		default:
			result.Metadata[k] = v.GetStringValue()
		}
	}

	return result
}

// Delete removes all chunks belonging to a document.
func (s *QdrantStore) Delete(ctx context.Context, namespace string, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespace,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch(payloadDocumentID, documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by document ID: %w", err)
	}

	return nil
}

// DeleteByIDs removes specific chunks by their IDs.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespace,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by IDs: %w", err)
	}

	return nil
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
