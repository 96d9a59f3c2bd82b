package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to the platform admin API over HTTP+JSON
type HTTPClient struct {
	endpoint     string
	projectID    string
	client       *http.Client
	pollInterval time.Duration
}

// NewHTTPClient creates a control-plane client. Individual requests carry
// their own short timeout; long-running operations are bounded by the
// caller's context passed to WaitOperation.
func NewHTTPClient(endpoint, projectID string) *HTTPClient {
	return &HTTPClient{
		endpoint:     endpoint,
		projectID:    projectID,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
	}
}

func (c *HTTPClient) servicePath(service, region string) string {
	return fmt.Sprintf("/v1/projects/%s/regions/%s/services/%s",
		url.PathEscape(c.projectID), url.PathEscape(region), url.PathEscape(service))
}

// GetService fetches the current service object
func (c *HTTPClient) GetService(ctx context.Context, service, region string) (*ServiceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+c.servicePath(service, region), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, service, region)
	default:
		return nil, fmt.Errorf("%w: get service returned status %d", ErrTransient, resp.StatusCode)
	}

	var info ServiceInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding service object: %w", err)
	}
	return &info, nil
}

type updateRequest struct {
	FieldMask string          `json:"field_mask"`
	Traffic   map[string]int  `json:"traffic,omitempty"`
	Scaling   *scalingPayload `json:"scaling,omitempty"`
}

type scalingPayload struct {
	MinInstances *int `json:"min_instances,omitempty"`
	MaxInstances *int `json:"max_instances,omitempty"`
}

type updateResponse struct {
	OperationID string `json:"operation_id"`
}

// UpdateTraffic replaces the traffic split with a single specific revision
func (c *HTTPClient) UpdateTraffic(ctx context.Context, service, region, revision string, percent int) (string, error) {
	return c.update(ctx, service, region, updateRequest{
		FieldMask: "traffic",
		Traffic:   map[string]int{revision: percent},
	})
}

// UpdateScaling overwrites the supplied instance bounds
func (c *HTTPClient) UpdateScaling(ctx context.Context, service, region string, min, max *int) (string, error) {
	return c.update(ctx, service, region, updateRequest{
		FieldMask: "template.scaling",
		Scaling:   &scalingPayload{MinInstances: min, MaxInstances: max},
	})
}

func (c *HTTPClient) update(ctx context.Context, service, region string, body updateRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.endpoint+c.servicePath(service, region), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, service, region)
	case http.StatusBadRequest:
		return "", fmt.Errorf("%w: update rejected", ErrInvalidArgument)
	default:
		return "", fmt.Errorf("%w: update returned status %d", ErrTransient, resp.StatusCode)
	}

	var out updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding update response: %w", err)
	}
	return out.OperationID, nil
}

type operationStatus struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// WaitOperation polls the operation until done or the context deadline.
// On deadline the in-flight operation id is surfaced via *OperationError.
func (c *HTTPClient) WaitOperation(ctx context.Context, operationID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		// Poll failures are retried until the deadline
		status, err := c.getOperation(ctx, operationID)
		if err == nil && status.Done {
			if status.Error != "" {
				return &OperationError{OperationID: operationID,
					Err: fmt.Errorf("%w: %s", ErrTransient, status.Error)}
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return &OperationError{OperationID: operationID, Err: ErrTimeout}
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) getOperation(ctx context.Context, operationID string) (*operationStatus, error) {
	path := fmt.Sprintf("/v1/projects/%s/operations/%s",
		url.PathEscape(c.projectID), url.PathEscape(operationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: operation poll returned status %d", ErrTransient, resp.StatusCode)
	}

	var status operationStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
