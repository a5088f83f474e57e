package telemetry_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/robalyx/marginalia/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineRotatorKeepsLatestLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main.log")

	r, err := telemetry.NewLineRotator(path, 5)
	require.NoError(t, err)

	for i := range 10 {
		_, err := r.Write([]byte("line " + strconv.Itoa(i) + "\n"))
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{"line 5", "line 6", "line 7", "line 8", "line 9"}, lines)
}

func TestLineRotatorAppendsBelowLimit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main.log")

	r, err := telemetry.NewLineRotator(path, 100)
	require.NoError(t, err)

	_, err = r.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	require.NoError(t, r.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}
