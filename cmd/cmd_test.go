package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/config"
	"github.com/xkilldash9x/sdsbook/internal/mocks"
	"github.com/xkilldash9x/sdsbook/internal/service"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

const testConfigYAML = `
logger:
  level: error
portal:
  base_url: https://sds.example.test
  username: advisor
  password: hunter2
  operator_code: "9999"
browser:
  max_sessions: 2
`

// fakeFactory hands out components whose launcher is a mock, so commands
// run without a browser or a database.
type fakeFactory struct {
	launcher *mocks.MockLauncher
	created  int
}

func newFakeFactory() *fakeFactory {
	l := new(mocks.MockLauncher)
	l.On("Shutdown", mock.Anything).Return(nil)
	return &fakeFactory{launcher: l}
}

func (f *fakeFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*service.Components, error) {
	f.created++
	return &service.Components{
		Launcher: f.launcher,
		Runner:   workflow.NewRunner(cfg, f.launcher, logger),
	}, nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs the command tree with args and returns its output.
func execute(t *testing.T, f service.ComponentFactory, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(f)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, newFakeFactory(), "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "sdsbook version "+Version)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, newFakeFactory(), "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err, "version never reads the configuration")
	assert.Equal(t, "sdsbook version "+Version+"\n", out)
}

func TestConfigCmd(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	out, err := execute(t, newFakeFactory(), "config", "--config", path, "--max-sessions", "3")
	require.NoError(t, err)

	assert.Contains(t, out, `operator_code: "9999"`)
	assert.Contains(t, out, "base_url: https://sds.example.test/")
	assert.Contains(t, out, "max_sessions: 3", "flags override the file")
	assert.Contains(t, out, "navigation: 30s")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "advisor\n")
}

func TestConfigCmd_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "browser:\n  backend: firefox\n")
	_, err := execute(t, newFakeFactory(), "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.backend")
}

func TestPortalCommandsRequirePortalConfig(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: error\n")
	f := newFakeFactory()

	_, err := execute(t, f, "lookup", "--config", path, "--phone", "5145550100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal.base_url is required")
	assert.Zero(t, f.created)
}

func TestLookupCmd_InvalidPhoneNeverLaunches(t *testing.T) {
	f := newFakeFactory()
	_, err := execute(t, f, "lookup", "--config", writeConfig(t, testConfigYAML), "--phone", "12")

	var failure *workflow.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "validation", failure.Kind)
	f.launcher.AssertNotCalled(t, "NewDriver", mock.Anything)
	f.launcher.AssertCalled(t, "Shutdown", mock.Anything)
}

func TestLookupCmd_SeveralPhonesReportEach(t *testing.T) {
	f := newFakeFactory()
	out, err := execute(t, f, "lookup", "--config", writeConfig(t, testConfigYAML), "--phone", "12", "--phone", "34")

	require.Error(t, err)
	assert.Equal(t, "2 of 2 lookups failed", err.Error())
	assert.Contains(t, out, `"telephone": "12"`)
	assert.Contains(t, out, `"telephone": "34"`)
	assert.Contains(t, out, `"error": "validation"`)
}

func TestLookupCmd_RequiresPhone(t *testing.T) {
	_, err := execute(t, newFakeFactory(), "lookup", "--config", writeConfig(t, testConfigYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"phone" not set`)
}

func TestAvailabilityCmd_InvalidDays(t *testing.T) {
	f := newFakeFactory()
	_, err := execute(t, f, "availability", "--config", writeConfig(t, testConfigYAML),
		"--phone", "5145550100", "--days", "Funday", "--timeframe", "14:00-16:00")

	var failure *workflow.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "validation", failure.Kind)
	assert.Contains(t, failure.Message, "days")
	f.launcher.AssertNotCalled(t, "NewDriver", mock.Anything)
}

func TestBookCmd_InvalidTransport(t *testing.T) {
	f := newFakeFactory()
	_, err := execute(t, f, "book", "--config", writeConfig(t, testConfigYAML),
		"--phone", "5145550100", "--car", "2022 Toyota RAV4", "--date", "2099-01-05T15:00:00", "--transport", "taxi")

	var failure *workflow.Failure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Message, "transport_mode")
	f.launcher.AssertNotCalled(t, "NewDriver", mock.Anything)
}

func TestBookCmd_RequiredFlags(t *testing.T) {
	_, err := execute(t, newFakeFactory(), "book", "--config", writeConfig(t, testConfigYAML), "--phone", "5145550100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "car")
	assert.Contains(t, err.Error(), "date")
}

func TestServeCmd_StopsWithContext(t *testing.T) {
	f := newFakeFactory()
	root := newRootCommand(f)
	root.SetArgs([]string{"serve", "--config", writeConfig(t, testConfigYAML), "--addr", "127.0.0.1:0"})
	root.SetOut(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Equal(t, 1, f.created)
	f.launcher.AssertCalled(t, "Shutdown", mock.Anything)
}
