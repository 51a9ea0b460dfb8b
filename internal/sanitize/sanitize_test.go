package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	require.Equal(t, "foo-bar_1", Name("foo bar_1"))
	require.Equal(t, "a-b-c", Name("a/b\\c"))
	require.Equal(t, "already-ok_9", Name("already-ok_9"))
	require.Equal(t, "", Name(""))
}
