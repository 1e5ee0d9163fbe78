package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Embedder generates vector embeddings from text
type Embedder struct {
	apiURL string
	client *http.Client
}

func NewEmbedder(apiURL string) *Embedder {
	return &Embedder{
		apiURL: apiURL,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Embed converts text to a vector embedding
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input": text,
		"model": "text-embedding-ada-002",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Data[0].Embedding, nil
}

// Recaller indexes fact entries in Qdrant and recalls the ones most
// relevant to the current message for prompt composition. Entirely
// optional: every failure is non-fatal and the caller composes without
// recall.
type Recaller struct {
	client     *qdrant.Client
	collection string
	embedder   *Embedder
	limit      int
}

func NewRecaller(qdrantURL, collection, apiKey string, embedder *Embedder, limit int) (*Recaller, error) {
	qdrantURL = strings.TrimPrefix(qdrantURL, "http://")
	qdrantURL = strings.TrimPrefix(qdrantURL, "https://")
	host := qdrantURL
	if idx := strings.Index(qdrantURL, ":"); idx != -1 {
		host = qdrantURL[:idx]
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   6334,
		APIKey: apiKey,
		UseTLS: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	r := &Recaller{client: client, collection: collection, embedder: embedder, limit: limit}
	if err := r.ensureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	return r, nil
}

func (r *Recaller) ensureCollection(ctx context.Context) error {
	exists, err := r.client.CollectionExists(ctx, r.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     1536,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	fieldType := qdrant.FieldType(qdrant.PayloadSchemaType_Keyword)
	_, err = r.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: r.collection,
		FieldName:      "user_id",
		FieldType:      &fieldType,
	})
	return err
}

// Index stores the fact entries among entries for later recall.
func (r *Recaller) Index(ctx context.Context, userID string, entries []Entry) error {
	var points []*qdrant.PointStruct
	for _, entry := range entries {
		if entry.Kind != KindFact {
			continue
		}
		vector, err := r.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return fmt.Errorf("embed fact: %w", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vector...),
			Payload: map[string]*qdrant.Value{
				"user_id": qdrant.NewValueString(userID),
				"content": qdrant.NewValueString(entry.Content),
			},
		})
	}
	if len(points) == 0 {
		return nil
	}
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Recall returns the contents of stored facts most similar to text,
// scoped strictly to userID.
func (r *Recaller) Recall(ctx context.Context, userID, text string) ([]string, error) {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	limit := uint64(r.limit)
	results, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_id", userID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	var contents []string
	for _, point := range results {
		if v, ok := point.Payload["content"]; ok {
			if s := v.GetStringValue(); s != "" {
				contents = append(contents, s)
			}
		}
	}
	return contents, nil
}
