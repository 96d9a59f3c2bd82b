package controlplane

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/autopilot/pkg/types"
)

// FakeClient is an in-memory control plane for tests and local mode.
// Mutations apply synchronously; WaitOperation completes immediately unless
// OperationErr is injected.
type FakeClient struct {
	mu       sync.Mutex
	services map[string]*ServiceInfo

	// Injected failures
	GetErr       error
	UpdateErr    error
	OperationErr error

	// Call records for assertions
	TrafficUpdates int
	ScalingUpdates int
}

// NewFakeClient creates an empty fake control plane
func NewFakeClient() *FakeClient {
	return &FakeClient{services: make(map[string]*ServiceInfo)}
}

// AddService registers a service; later mutations update it in place
func (f *FakeClient) AddService(info *ServiceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[info.Name+"/"+info.Region] = info
}

// Service returns the current state of one registered service
func (f *FakeClient) Service(name, region string) *ServiceInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[name+"/"+region]
}

func (f *FakeClient) GetService(ctx context.Context, service, region string) (*ServiceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	info, ok := f.services[service+"/"+region]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, service, region)
	}
	// Copy so callers cannot mutate stored state directly
	out := *info
	out.TrafficSplit = make(map[string]int, len(info.TrafficSplit))
	for k, v := range info.TrafficSplit {
		out.TrafficSplit[k] = v
	}
	out.Revisions = append([]Revision(nil), info.Revisions...)
	return &out, nil
}

func (f *FakeClient) UpdateTraffic(ctx context.Context, service, region, revision string, percent int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return "", f.UpdateErr
	}
	info, ok := f.services[service+"/"+region]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, service, region)
	}
	info.TrafficSplit = map[string]int{revision: percent}
	f.TrafficUpdates++
	return "op-" + uuid.New().String(), nil
}

func (f *FakeClient) UpdateScaling(ctx context.Context, service, region string, min, max *int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return "", f.UpdateErr
	}
	info, ok := f.services[service+"/"+region]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, service, region)
	}
	if min != nil {
		v := *min
		info.Scaling.MinInstances = &v
	}
	if max != nil {
		v := *max
		info.Scaling.MaxInstances = &v
	}
	f.ScalingUpdates++
	return "op-" + uuid.New().String(), nil
}

func (f *FakeClient) WaitOperation(ctx context.Context, operationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OperationErr != nil {
		return &OperationError{OperationID: operationID, Err: f.OperationErr}
	}
	return nil
}

// SetScaling is a test helper to seed instance bounds
func SetScaling(info *ServiceInfo, min, max int) {
	info.Scaling = types.ScaleParams{MinInstances: &min, MaxInstances: &max}
}
