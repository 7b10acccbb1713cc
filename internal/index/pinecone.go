package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultControlURL = "https://api.pinecone.io"

// Pinecone implements Client against the Pinecone REST API. Records are
// upserted through the integrated-embedding endpoint, so the service computes
// vectors from the record text.
type Pinecone struct {
	controlURL string
	apiKey     string
	indexName  string
	namespace  string
	host       string // data-plane base URL, resolved by Connect
	client     *http.Client
}

// NewPinecone creates a client for the named index. An empty controlURL
// selects the public control plane.
func NewPinecone(controlURL, apiKey, indexName, namespace string) *Pinecone {
	if controlURL == "" {
		controlURL = defaultControlURL
	}
	return &Pinecone{
		controlURL: controlURL,
		apiKey:     apiKey,
		indexName:  indexName,
		namespace:  namespace,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type describeIndexResponse struct {
	Host string `json:"host"`
}

// Connect resolves the index's data-plane host from the control plane.
func (p *Pinecone) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.controlURL+"/indexes/"+url.PathEscape(p.indexName), nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	var desc describeIndexResponse
	if err := p.do(req, &desc); err != nil {
		return fmt.Errorf("describe index %s: %w", p.indexName, err)
	}
	if desc.Host == "" {
		return fmt.Errorf("describe index %s: no host in response", p.indexName)
	}

	p.host = desc.Host
	if !strings.Contains(p.host, "://") {
		p.host = "https://" + p.host
	}
	return nil
}

// Upsert writes one batch of records as newline-delimited JSON.
func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}

	endpoint := fmt.Sprintf("%s/records/namespaces/%s/upsert", p.host, url.PathEscape(p.namespace))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, &body)
	if err != nil {
		return err
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-ndjson")

	if err := p.do(req, nil); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace"`
}

// Delete removes one batch of IDs from the working namespace.
func (p *Pinecone) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	body, err := json.Marshal(deleteRequest{IDs: ids, Namespace: p.namespace})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.host+"/vectors/delete", bytes.NewReader(body))
	if err != nil {
		return err
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	if err := p.do(req, nil); err != nil {
		return fmt.Errorf("delete %d ids: %w", len(ids), err)
	}
	return nil
}

type listResponse struct {
	Vectors []struct {
		ID string `json:"id"`
	} `json:"vectors"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

// ListIDs pages through every record ID in the working namespace.
func (p *Pinecone) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	token := ""

	for {
		q := url.Values{}
		q.Set("namespace", p.namespace)
		if token != "" {
			q.Set("paginationToken", token)
		}
		req, err := http.NewRequestWithContext(ctx, "GET", p.host+"/vectors/list?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		p.setHeaders(req)

		var page listResponse
		if err := p.do(req, &page); err != nil {
			return nil, fmt.Errorf("list ids: %w", err)
		}
		for _, v := range page.Vectors {
			ids = append(ids, v.ID)
		}
		if page.Pagination.Next == "" {
			return ids, nil
		}
		token = page.Pagination.Next
	}
}

type fetchResponse struct {
	Vectors map[string]struct {
		ID       string `json:"id"`
		Metadata struct {
			Text        string `json:"text"`
			Filename    string `json:"filename"`
			ChunkIndex  int    `json:"chunk_index"`
			TotalChunks int    `json:"total_chunks"`
			DocType     string `json:"doc_type"`
		} `json:"metadata"`
	} `json:"vectors"`
}

// Fetch retrieves one batch of records by ID.
func (p *Pinecone) Fetch(ctx context.Context, ids []string) (map[string]Record, error) {
	if len(ids) == 0 {
		return map[string]Record{}, nil
	}

	q := url.Values{}
	q.Set("namespace", p.namespace)
	for _, id := range ids {
		q.Add("ids", id)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", p.host+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)

	var resp fetchResponse
	if err := p.do(req, &resp); err != nil {
		return nil, fmt.Errorf("fetch %d ids: %w", len(ids), err)
	}

	records := make(map[string]Record, len(resp.Vectors))
	for id, v := range resp.Vectors {
		records[id] = Record{
			ID:          id,
			Text:        v.Metadata.Text,
			Filename:    v.Metadata.Filename,
			ChunkIndex:  v.Metadata.ChunkIndex,
			TotalChunks: v.Metadata.TotalChunks,
			DocType:     v.Metadata.DocType,
		}
	}
	return records, nil
}

type statsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
	TotalVectorCount int `json:"totalVectorCount"`
}

// Stats returns record counts for the index and the working namespace.
func (p *Pinecone) Stats(ctx context.Context) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.host+"/describe_index_stats", strings.NewReader("{}"))
	if err != nil {
		return Stats{}, err
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	var resp statsResponse
	if err := p.do(req, &resp); err != nil {
		return Stats{}, fmt.Errorf("describe index stats: %w", err)
	}
	return Stats{
		TotalVectors:     resp.TotalVectorCount,
		NamespaceVectors: resp.Namespaces[p.namespace].VectorCount,
	}, nil
}

func (p *Pinecone) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Accept", "application/json")
}

// do executes the request, checks the status and optionally decodes the body.
func (p *Pinecone) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pinecone error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
