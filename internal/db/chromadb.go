package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ChromaDBClient wraps HTTP calls to the ChromaDB v2 API
// Collection IDs are cached after first resolution so the hot search path
// costs a single round trip.
type ChromaDBClient struct {
	baseURL    string
	hostPort   string
	httpClient *http.Client
	tenant     string
	database   string

	mu            sync.RWMutex
	collectionIDs map[string]string
}

// ChromaDBConfig holds configuration for ChromaDB connection
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration
}

// Collection represents a ChromaDB collection
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QueryResponse represents the response from a similarity query
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// GetResponse represents the response from a get request
type GetResponse struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings,omitempty"`
}

// NewChromaDBClient creates a new ChromaDB client with v2 API support
func NewChromaDBClient(config ChromaDBConfig) *ChromaDBClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	hostPort := fmt.Sprintf("%s:%d", config.Host, config.Port)

	// ChromaDB v2 API uses tenant and database in the path
	baseURL := fmt.Sprintf("http://%s/api/v2/tenants/%s/databases/%s",
		hostPort, config.Tenant, config.Database)

	return &ChromaDBClient{
		baseURL:  baseURL,
		hostPort: hostPort,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		tenant:        config.Tenant,
		database:      config.Database,
		collectionIDs: make(map[string]string),
	}
}

// Heartbeat checks if ChromaDB is alive
func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	heartbeatURL := fmt.Sprintf("http://%s/api/v2/heartbeat", c.hostPort)
	req, err := http.NewRequestWithContext(ctx, "GET", heartbeatURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create heartbeat request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat failed with status: %d", resp.StatusCode)
	}

	return nil
}

// GetOrCreateCollection resolves a collection by name, creating it with
// cosine distance if it does not exist yet
func (c *ChromaDBClient) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (*Collection, error) {
	if metadata == nil {
		metadata = map[string]interface{}{
			"hnsw:space": "cosine",
		}
	}

	payload := map[string]interface{}{
		"name":          name,
		"metadata":      metadata,
		"get_or_create": true,
	}

	var collection Collection
	if err := c.post(ctx, fmt.Sprintf("%s/collections", c.baseURL), payload, &collection); err != nil {
		return nil, fmt.Errorf("get_or_create collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.collectionIDs[name] = collection.ID
	c.mu.Unlock()

	return &collection, nil
}

// GetCollection retrieves collection information by name
func (c *ChromaDBClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get collection failed (status %d): %s", resp.StatusCode, string(body))
	}

	var collection Collection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.mu.Lock()
	c.collectionIDs[name] = collection.ID
	c.mu.Unlock()

	return &collection, nil
}

// DeleteCollection deletes a collection
func (c *ChromaDBClient) DeleteCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete collection failed (status %d): %s", resp.StatusCode, string(body))
	}

	c.mu.Lock()
	delete(c.collectionIDs, name)
	c.mu.Unlock()

	return nil
}

// CountCollection returns the number of documents in a collection
func (c *ChromaDBClient) CountCollection(ctx context.Context, name string) (int, error) {
	collID, err := c.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/collections/%s/count", c.baseURL, collID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("count collection failed (status %d): %s", resp.StatusCode, string(body))
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return count, nil
}

// UpsertDocuments writes documents with embeddings into a collection.
// Upsert keeps reindexing idempotent: re-running a transcript replaces its
// chunk vectors instead of duplicating them.
func (c *ChromaDBClient) UpsertDocuments(ctx context.Context, collectionName string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	collID, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
	}
	if metadatas != nil {
		payload["metadatas"] = metadatas
	}

	url := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, collID)
	if err := c.post(ctx, url, payload, nil); err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}

	return nil
}

// Query searches for documents similar to the query embedding, optionally
// restricted by a where filter
func (c *ChromaDBClient) Query(ctx context.Context, collectionName string, queryEmbedding []float32, nResults int, where map[string]interface{}) (*QueryResponse, error) {
	collID, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"query_embeddings": [][]float32{queryEmbedding},
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	var queryResp QueryResponse
	url := fmt.Sprintf("%s/collections/%s/query", c.baseURL, collID)
	if err := c.post(ctx, url, payload, &queryResp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	return &queryResp, nil
}

// DeleteWhere removes all documents matching the where filter and returns
// how many ids matched
func (c *ChromaDBClient) DeleteWhere(ctx context.Context, collectionName string, where map[string]interface{}) (int, error) {
	// Resolve matching ids first; the delete endpoint does not report counts
	existing, err := c.GetDocuments(ctx, collectionName, where, 0, false)
	if err != nil {
		return 0, err
	}
	if len(existing.IDs) == 0 {
		return 0, nil
	}

	collID, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return 0, err
	}

	payload := map[string]interface{}{
		"ids": existing.IDs,
	}

	url := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, collID)
	if err := c.post(ctx, url, payload, nil); err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}

	return len(existing.IDs), nil
}

// GetDocuments retrieves documents from a collection with optional filtering
func (c *ChromaDBClient) GetDocuments(ctx context.Context, collectionName string, where map[string]interface{}, limit int, includeEmbeddings bool) (*GetResponse, error) {
	collID, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	if includeEmbeddings {
		payload["include"] = []string{"documents", "metadatas", "embeddings"}
	}
	if len(where) > 0 {
		payload["where"] = where
	}
	if limit > 0 {
		payload["limit"] = limit
	} else {
		// Default to fetching all documents (use a large limit)
		payload["limit"] = 100000
	}

	var getResp GetResponse
	url := fmt.Sprintf("%s/collections/%s/get", c.baseURL, collID)
	if err := c.post(ctx, url, payload, &getResp); err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	return &getResp, nil
}

// Close closes the HTTP client connections
func (c *ChromaDBClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// collectionID resolves a collection name to its ID, using the local cache
// when possible
func (c *ChromaDBClient) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	id, ok := c.collectionIDs[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	collection, err := c.GetCollection(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve collection %s: %w", name, err)
	}
	return collection.ID, nil
}

// post sends a JSON payload and decodes the JSON response into out when
// out is non-nil
func (c *ChromaDBClient) post(ctx context.Context, url string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
