package allosaur

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func failingLookup() error {
	return xerrors.Errorf("looking up member: %w", ErrUnknownMember)
}

func TestError_ErrorOrNil(t *testing.T) {
	err := ErrorOrNil(failingLookup(), "witness")

	require.Equal(t, "witness: looking up member: unknown member", err.Error())
	require.True(t, xerrors.Is(err, ErrUnknownMember))
	require.Nil(t, ErrorOrNil(nil, ""))
}

// The skipped caller must not show up in the trace.
func TestError_ErrorOrNilSkip(t *testing.T) {
	err := ErrorOrNilSkip(failingLookup(), "witness", 2)

	require.NotContains(t, fmt.Sprintf("%+v", err), t.Name())
	require.Contains(t, fmt.Sprintf("%+v", err), ".failingLookup")
}

func TestError_WrapError(t *testing.T) {
	err := WrapError(failingLookup())

	require.Equal(t, "looking up member: unknown member", err.Error())
	require.True(t, xerrors.Is(err, ErrUnknownMember))
	require.False(t, xerrors.Is(err, ErrDuplicateMember))
}
