// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	return m.Called().Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Vault() config.VaultConfig {
	return m.Called().Get(0).(config.VaultConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	return m.Called().Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Login() config.LoginConfig {
	return m.Called().Get(0).(config.LoginConfig)
}

func (m *MockConfig) Navigator() config.NavigatorConfig {
	return m.Called().Get(0).(config.NavigatorConfig)
}

func (m *MockConfig) Debug() config.DebugConfig {
	return m.Called().Get(0).(config.DebugConfig)
}

// -- Store Mock --

// MockRecordReader mocks the read side of the record store.
type MockRecordReader struct {
	mock.Mock
}

func (m *MockRecordReader) AccountByRef(ctx context.Context, ref string, withSecrets bool) (*schemas.Account, error) {
	args := m.Called(ctx, ref, withSecrets)
	acct, _ := args.Get(0).(*schemas.Account)
	return acct, args.Error(1)
}

func (m *MockRecordReader) BrandByRef(ctx context.Context, ref string) (*schemas.Brand, error) {
	args := m.Called(ctx, ref)
	brand, _ := args.Get(0).(*schemas.Brand)
	return brand, args.Error(1)
}

func (m *MockRecordReader) BrandsByAccount(ctx context.Context, accountID string) ([]schemas.Brand, error) {
	args := m.Called(ctx, accountID)
	brands, _ := args.Get(0).([]schemas.Brand)
	return brands, args.Error(1)
}

func (m *MockRecordReader) AutomationSettings(ctx context.Context) (*schemas.AutomationSettings, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*schemas.AutomationSettings)
	return st, args.Error(1)
}

// -- Browser Mocks --

// MockBrowser mocks schemas.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewPage(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(schemas.Page)
	return page, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockPage mocks schemas.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Visible(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Disabled(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Checked(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Value(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Type(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
