package ha

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// MockClient implements HAClient interface for testing
type MockClient struct {
	connected    bool
	connMu       sync.RWMutex
	serviceCalls []ServiceCall
	callErr      error
	callsMu      sync.Mutex
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect(_ context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.connected = false
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// CallService records a service call, failing with the error set by FailCalls
func (m *MockClient) CallService(_ context.Context, domain, service string, data map[string]any) error {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	if m.callErr != nil {
		return m.callErr
	}

	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    maps.Clone(data),
	})
	return nil
}

// SetInputBoolean records the matching input_boolean service call
func (m *MockClient) SetInputBoolean(ctx context.Context, name string, value bool) error {
	return setInputBoolean(ctx, m, name, value)
}

// FailCalls makes every following service call return err; nil restores success
func (m *MockClient) FailCalls(err error) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.callErr = err
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ClearServiceCalls clears the service call history
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
}
