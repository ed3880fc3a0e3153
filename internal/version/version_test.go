package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringIncludesAllFields(t *testing.T) {
	origEngine, origCommit, origBuilt := Engine, Commit, BuiltAt
	defer func() { Engine, Commit, BuiltAt = origEngine, origCommit, origBuilt }()

	Engine, Commit, BuiltAt = "1.2.3", "abcdef0", "2026-01-01T00:00:00Z"

	s := String()
	require.Contains(t, s, "1.2.3")
	require.Contains(t, s, "abcdef0")
	require.Contains(t, s, "2026-01-01T00:00:00Z")
}

func TestDefaultsAreNonEmpty(t *testing.T) {
	require.NotEmpty(t, Engine)
	require.NotEmpty(t, Commit)
	require.NotEmpty(t, BuiltAt)
}
