package stats

import "github.com/stretchr/testify/mock"

// MockStatsProvider is a testify mock over StatsProvider for tests
// that only need to observe counter traffic.
type MockStatsProvider struct {
	mock.Mock
}

var _ StatsProvider = (*MockStatsProvider)(nil)

func (m *MockStatsProvider) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsProvider) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsProvider) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsProvider) Run() {
	m.Called()
}
