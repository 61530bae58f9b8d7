package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/server/models"
)

// ArweaveClient talks to an Arweave gateway/bundler over its REST API.
// The gateway signs and funds the transaction; this client only submits
// payload bytes plus tags and records the returned transaction id.
type ArweaveClient struct {
	baseURL string
	tags    []models.Tag
	timeout time.Duration
	http    *http.Client
}

// NewArweaveClient constructs a client for the gateway at baseURL (no
// trailing slash). The tags are attached to every submitted transaction.
func NewArweaveClient(baseURL string, tags []models.Tag, timeout time.Duration) *ArweaveClient {
	return &ArweaveClient{
		baseURL: baseURL,
		tags:    tags,
		timeout: timeout,
		http:    &http.Client{},
	}
}

type arweaveSubmitRequest struct {
	Data []byte       `json:"data"`
	Tags []models.Tag `json:"tags,omitempty"`
}

type arweaveSubmitResponse struct {
	ID string `json:"id"`
}

// Write submits payload as a new transaction and returns its id.
func (c *ArweaveClient) Write(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(arweaveSubmitRequest{Data: payload, Tags: c.tags})
	if err != nil {
		return "", fmt.Errorf("submit encode error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", wrapTimeout(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway submit failed: status %d", resp.StatusCode)
	}

	var submitted arweaveSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", fmt.Errorf("submit decode error: %w", err)
	}
	if submitted.ID == "" {
		return "", fmt.Errorf("gateway returned empty transaction id")
	}
	return submitted.ID, nil
}

// Read fetches the raw payload of transaction id from the gateway.
func (c *ArweaveClient) Read(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tx/"+id+"/data", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	default:
		return nil, fmt.Errorf("gateway read failed: status %d", resp.StatusCode)
	}
}
