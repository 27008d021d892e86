package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type ctxKey string

func TestCombineContext_SecondaryCancels(t *testing.T) {
	primary := context.WithValue(context.Background(), ctxKey("target"), "tab-1")
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := CombineContext(primary, secondary)
	defer cancel()

	assert.Equal(t, "tab-1", combined.Value(ctxKey("target")))
	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not canceled with the secondary one")
	}
	assert.NoError(t, primary.Err())
}

func TestCombineContext_PrimaryCancels(t *testing.T) {
	primary, cancelPrimary := context.WithCancel(context.Background())
	combined, cancel := CombineContext(primary, context.Background())
	defer cancel()

	cancelPrimary()
	<-combined.Done()
	assert.ErrorIs(t, combined.Err(), context.Canceled)
}

func TestCombineContext_CancelReleasesWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	combined, cancel := CombineContext(context.Background(), context.Background())
	cancel()
	<-combined.Done()
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey("k"), "v"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, ok := detached.Deadline()
	assert.False(t, ok)
	assert.Equal(t, "v", detached.Value(ctxKey("k")))
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := withTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	bounded, cancelBounded := withTimeout(context.Background(), time.Minute)
	defer cancelBounded()
	_, ok = bounded.Deadline()
	assert.True(t, ok)
}
