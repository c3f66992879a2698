// Package sync delivers locally persisted results to the cloud control
// plane: enrollment, heartbeats, candidate and anomaly batches and the
// durable sync queue. All cloud calls run through a circuit breaker so
// an unreachable cloud degrades to offline mode instead of blocking the
// engine.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Cloud API endpoints, relative to the base URL.
const (
	endpointEnroll     = "/api/edge/enroll"
	endpointHeartbeat  = "/api/edge/heartbeat"
	endpointCandidates = "/api/edge/candidate-scores"
	endpointAnomalies  = "/api/edge/anomalies"
	endpointIngestion  = "/api/edge/batch-ingestion"
)

// EnrollRequest registers a new edge node with the control plane.
type EnrollRequest struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// EnrollResponse carries the identity the control plane assigned.
type EnrollResponse struct {
	NodeID  string `json:"node_id"`
	NodeKey string `json:"node_key"`
}

// HeartbeatRequest reports node liveness and backlog.
type HeartbeatRequest struct {
	NodeID     string `json:"node_id"`
	Status     string `json:"status"`
	JobCount   int    `json:"job_count"`
	QueueDepth int    `json:"queue_depth"`
}

// Client is the HTTP client for the cloud control plane. Requests are
// rate limited and routed through the circuit breaker.
type Client struct {
	baseURL string
	nodeKey string
	http    *http.Client
	breaker *Breaker
	limiter *rate.Limiter
}

// NewClient creates a cloud client. reqPerSec bounds the outbound
// request rate; nodeKey may be empty before enrollment.
func NewClient(baseURL, nodeKey string, reqPerSec float64) *Client {
	if reqPerSec <= 0 {
		reqPerSec = 10
	}
	return &Client{
		baseURL: baseURL,
		nodeKey: nodeKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: NewBreaker(),
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), int(reqPerSec)+1),
	}
}

// SetNodeKey installs the key returned by enrollment.
func (c *Client) SetNodeKey(key string) {
	c.nodeKey = key
}

// BreakerState exposes the circuit state for status reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// Enroll registers this node and returns its assigned identity.
// Enrollment bypasses the node key since none exists yet.
func (c *Client) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResponse, error) {
	var resp EnrollResponse
	if err := c.post(ctx, endpointEnroll, req, &resp); err != nil {
		return nil, fmt.Errorf("sync: enrollment failed: %w", err)
	}
	if resp.NodeID == "" || resp.NodeKey == "" {
		return nil, fmt.Errorf("sync: enrollment response missing node identity")
	}
	return &resp, nil
}

// Heartbeat reports liveness to the control plane.
func (c *Client) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	if err := c.post(ctx, endpointHeartbeat, req, nil); err != nil {
		return fmt.Errorf("sync: heartbeat failed: %w", err)
	}
	return nil
}

// PushCandidates delivers a batch of match candidates.
func (c *Client) PushCandidates(ctx context.Context, nodeID string, batch interface{}) error {
	payload := map[string]interface{}{"node_id": nodeID, "candidates": batch}
	if err := c.post(ctx, endpointCandidates, payload, nil); err != nil {
		return fmt.Errorf("sync: failed to push candidates: %w", err)
	}
	return nil
}

// PushAnomalies delivers a batch of anomalies.
func (c *Client) PushAnomalies(ctx context.Context, nodeID string, batch interface{}) error {
	payload := map[string]interface{}{"node_id": nodeID, "anomalies": batch}
	if err := c.post(ctx, endpointAnomalies, payload, nil); err != nil {
		return fmt.Errorf("sync: failed to push anomalies: %w", err)
	}
	return nil
}

// PushQueued delivers a raw queued payload to the endpoint for its
// entity type.
func (c *Client) PushQueued(ctx context.Context, entityType string, payload json.RawMessage) error {
	endpoint, ok := map[string]string{
		"batch_ingestion": endpointIngestion,
		"candidate":       endpointCandidates,
		"anomaly":         endpointAnomalies,
	}[entityType]
	if !ok {
		return fmt.Errorf("sync: unknown entity type %q", entityType)
	}
	if err := c.post(ctx, endpoint, payload, nil); err != nil {
		return fmt.Errorf("sync: failed to push %s: %w", entityType, err)
	}
	return nil
}

// post sends a JSON body through the rate limiter and circuit breaker.
// A non-nil out is filled from the response body.
func (c *Client) post(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.nodeKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.nodeKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("cloud returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	})
	if err != nil {
		return err
	}

	if out != nil {
		respBody := result.([]byte)
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
