package errs

import (
	"testing"

	stderrors "errors"

	"github.com/stretchr/testify/require"
)

func TestNewCarriesKind(t *testing.T) {
	err := New(NotFound, "widget %d missing", 7)
	require.Equal(t, NotFound, KindOf(err))
	require.True(t, Is(err, NotFound))
	require.False(t, Is(err, Timeout))
	require.Contains(t, err.Error(), "widget 7 missing")
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := stderrors.New("socket reset")
	err := Wrap(Transport, cause, "send failed")
	require.True(t, Is(err, Transport))
	require.ErrorIs(t, err, cause)
}

func TestKindOfDefaultsToInternalErrorForForeignErrors(t *testing.T) {
	require.Equal(t, InternalError, KindOf(stderrors.New("boom")))
}

func TestKindOfOkForNil(t *testing.T) {
	require.Equal(t, Ok, KindOf(nil))
}

func TestKindStringRoundTrip(t *testing.T) {
	for k := Ok; k <= InternalError; k++ {
		require.NotContains(t, k.String(), "Kind(")
	}
}
