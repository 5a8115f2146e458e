package handlerreg

import (
	"testing"

	"github.com/adam-ikari/uvrpc/errs"
	"github.com/stretchr/testify/require"
)

func noop(ctx interface{}, payload []byte) {}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", noop))

	h, ok := r.Lookup("echo")
	require.True(t, ok)
	require.NotNil(t, h)

	_, ok = r.Lookup("missing")
	require.False(t, ok)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", noop))

	err := r.Register("echo", noop)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.AlreadyExists))
}

func TestRegisterRejectsAfterFreeze(t *testing.T) {
	r := New()
	r.Freeze()

	err := r.Register("echo", noop)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidState))
}

func TestFreezeIsIdempotent(t *testing.T) {
	r := New()
	r.Freeze()
	r.Freeze()

	err := r.Register("echo", noop)
	require.Error(t, err)
}
