package controlplane

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/autopilot/pkg/types"
)

// Error taxonomy for control-plane calls. Callers discriminate with
// errors.Is; the fixer maps all of them to a FAILED incident.
var (
	// ErrNotFound means the named service does not exist
	ErrNotFound = errors.New("service not found")

	// ErrInvalidArgument means the request is structurally valid but
	// unsatisfiable, e.g. a rollback to a revision the service never had
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransient means the call may succeed if retried
	ErrTransient = errors.New("transient control plane error")

	// ErrTimeout means a long-running operation outlived its deadline
	ErrTimeout = errors.New("operation deadline exceeded")
)

// OperationError wraps a control-plane error with the id of the in-flight
// long-running operation, so a timed-out mutation can still be traced.
type OperationError struct {
	OperationID string
	Err         error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s: %v", e.OperationID, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Revision is one deployed revision of a service, newest first in
// ServiceInfo.Revisions.
type Revision struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceInfo is the control-plane view of one managed service
type ServiceInfo struct {
	Name           string            `json:"name"`
	Region         string            `json:"region"`
	LatestRevision string            `json:"latest_revision"`
	TrafficSplit   map[string]int    `json:"traffic_split"`
	Revisions      []Revision        `json:"revisions"`
	Scaling        types.ScaleParams `json:"scaling"`
	URL            string            `json:"url,omitempty"`
}

// HasRevision reports whether name is among the service's revisions
func (s *ServiceInfo) HasRevision(name string) bool {
	for _, r := range s.Revisions {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Client mutates managed services through the platform admin API.
// Both mutations are read-modify-write with a field mask; updates return
// the id of a long-running operation which WaitOperation polls to
// completion.
type Client interface {
	// GetService fetches the current service object; ErrNotFound on miss
	GetService(ctx context.Context, service, region string) (*ServiceInfo, error)

	// UpdateTraffic replaces the traffic split with a single specific
	// revision target (field mask: traffic)
	UpdateTraffic(ctx context.Context, service, region, revision string, percent int) (operationID string, err error)

	// UpdateScaling overwrites the supplied instance bounds, preserving
	// any bound passed as nil (field mask: template.scaling)
	UpdateScaling(ctx context.Context, service, region string, min, max *int) (operationID string, err error)

	// WaitOperation blocks until the operation completes or ctx expires;
	// on deadline it returns an *OperationError wrapping ErrTimeout
	WaitOperation(ctx context.Context, operationID string) error
}
