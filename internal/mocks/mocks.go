// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/sdsbook/internal/browser"
	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/schedule"
	"github.com/xkilldash9x/sdsbook/internal/store"
	"github.com/xkilldash9x/sdsbook/internal/vehicle"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Portal() config.PortalConfig {
	args := m.Called()
	return args.Get(0).(config.PortalConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Timeouts() config.TimeoutConfig {
	args := m.Called()
	return args.Get(0).(config.TimeoutConfig)
}

func (m *MockConfig) Retry() config.RetryConfig {
	args := m.Called()
	return args.Get(0).(config.RetryConfig)
}

func (m *MockConfig) Navigator() config.NavigatorConfig {
	args := m.Called()
	return args.Get(0).(config.NavigatorConfig)
}

func (m *MockConfig) Schedule() config.ScheduleConfig {
	args := m.Called()
	return args.Get(0).(config.ScheduleConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetBrowserBackend(s string) {
	m.Called(s)
}

func (m *MockConfig) SetBrowserMaxSessions(n int) {
	m.Called(n)
}

func (m *MockConfig) SetServerAddr(addr string) {
	m.Called(addr)
}

// -- Browser Mocks --

// MockLauncher mocks browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) NewDriver(ctx context.Context) (browser.Driver, error) {
	args := m.Called(ctx)
	d, _ := args.Get(0).(browser.Driver)
	return d, args.Error(1)
}

func (m *MockLauncher) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Store Mocks --

// MockServiceCatalog mocks the vehicle-to-service catalog.
type MockServiceCatalog struct {
	mock.Mock
}

func (m *MockServiceCatalog) OilTypes(ctx context.Context, model string, year int, hybrid bool, cylinders int) ([]store.OilType, error) {
	args := m.Called(ctx, model, year, hybrid, cylinders)
	oils, _ := args.Get(0).([]store.OilType)
	return oils, args.Error(1)
}

func (m *MockServiceCatalog) ServiceFor(ctx context.Context, oil string, suv bool, cylinders int) (vehicle.Service, error) {
	args := m.Called(ctx, oil, suv, cylinders)
	return args.Get(0).(vehicle.Service), args.Error(1)
}

func (m *MockServiceCatalog) TierServices(ctx context.Context, model string, cylinders, year int, tier string) ([]vehicle.Service, error) {
	args := m.Called(ctx, model, cylinders, year, tier)
	svcs, _ := args.Get(0).([]vehicle.Service)
	return svcs, args.Error(1)
}

// MockAppointmentStore mocks appointment persistence.
type MockAppointmentStore struct {
	mock.Mock
}

func (m *MockAppointmentStore) InsertAppointment(ctx context.Context, a store.Appointment) (int64, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(int64), args.Error(1)
}

// MockAvailabilityStore mocks availability snapshot persistence.
type MockAvailabilityStore struct {
	mock.Mock
}

func (m *MockAvailabilityStore) SaveSnapshot(ctx context.Context, weeks []schedule.Week) error {
	args := m.Called(ctx, weeks)
	return args.Error(0)
}

func (m *MockAvailabilityStore) PruneWeeks(ctx context.Context, keep []string) (int64, error) {
	args := m.Called(ctx, keep)
	return args.Get(0).(int64), args.Error(1)
}
