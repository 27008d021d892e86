package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/sdsbook/internal/browser/browsertest"
	"github.com/xkilldash9x/sdsbook/internal/config"
)

const testBaseURL = "https://sds.example.test/"

// sleepRecorder is a Sleeper that never blocks and remembers every wait.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func (r *sleepRecorder) Count(d time.Duration) int {
	n := 0
	for _, w := range r.Waits() {
		if w == d {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.PortalCfg.BaseURL = testBaseURL
	cfg.PortalCfg.Username = "advisor"
	cfg.PortalCfg.Password = "secret"
	return cfg
}

func newTestSession(t *testing.T, d *browsertest.Driver) (*Session, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	s := NewSession(d, testConfig(), zaptest.NewLogger(t), WithSleeper(rec.Sleep), WithID("test-session"))
	return s, rec
}
