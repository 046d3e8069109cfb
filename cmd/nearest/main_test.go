package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicdb-nearest/pkg/config"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
	"github.com/orneryd/nornicdb-nearest/pkg/storage"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCentroidsLifecycle(t *testing.T) {
	store := filepath.Join(t.TempDir(), "store")
	global := []string{"--store", store, "--backend", "host"}

	out, err := run(t, "0,0\n10,10\n", append([]string{"centroids", "put", "pair"}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "pair: 2 centroids, dimensionality 2")

	out, err = run(t, "", append([]string{"centroids", "list"}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "pair")

	out, err = run(t, "", append([]string{"centroids", "get", "pair"}, global...)...)
	require.NoError(t, err)
	assert.Equal(t, "0,0\n10,10\n", out)

	_, err = run(t, "", append([]string{"centroids", "delete", "pair"}, global...)...)
	require.NoError(t, err)

	_, err = run(t, "", append([]string{"centroids", "get", "pair"}, global...)...)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssignFromStore(t *testing.T) {
	store := filepath.Join(t.TempDir(), "store")
	global := []string{"--store", store, "--backend", "host", "--batch", "2"}

	_, err := run(t, "0,0\n10,10\n", append([]string{"centroids", "put", "pair"}, global...)...)
	require.NoError(t, err)

	out, err := run(t, "a,1,1\nb,9,9\nc,-1,-1\n", append([]string{"assign", "--set", "pair"}, global...)...)
	require.NoError(t, err)
	assert.Equal(t, "a,1,1,0,0\nb,9,9,10,10\nc,-1,-1,0,0\n", out)
}

func TestAssignFromFiles(t *testing.T) {
	dir := t.TempDir()
	centroids := filepath.Join(dir, "centroids.csv")
	points := filepath.Join(dir, "points.csv")
	output := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(centroids, []byte("0\n100\n"), 0o644))
	require.NoError(t, os.WriteFile(points, []byte("# one per line\n3\n97\n"), 0o644))

	_, err := run(t, "", "assign", "--backend", "host", "--centroids", centroids, "-o", output, points)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "2,3,0\n3,97,100\n", string(data))
}

func TestAssignDimensionalityMismatch(t *testing.T) {
	centroids := filepath.Join(t.TempDir(), "centroids.csv")
	require.NoError(t, os.WriteFile(centroids, []byte("0,0\n10,10\n"), 0o644))

	t.Setenv(config.EnvDimensionality, "3")
	_, err := run(t, "1,1\n", "assign", "--backend", "host", "--centroids", centroids)
	assert.ErrorIs(t, err, nearest.ErrDimensionMismatch)

	t.Setenv(config.EnvDimensionality, "2")
	out, err := run(t, "1,1\n", "assign", "--backend", "host", "--centroids", centroids)
	require.NoError(t, err)
	assert.Equal(t, "1,1,1,0,0\n", out)
}

func TestAssignMetricsListener(t *testing.T) {
	centroids := filepath.Join(t.TempDir(), "centroids.csv")
	require.NoError(t, os.WriteFile(centroids, []byte("0\n100\n"), 0o644))

	t.Run("address in use fails before assigning", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		t.Setenv(config.EnvMetricsListen, ln.Addr().String())
		out, err := run(t, "3\n", "assign", "--backend", "host", "--centroids", centroids)
		assert.ErrorContains(t, err, "metrics listener")
		assert.Empty(t, out)
	})

	t.Run("server is shut down on return", func(t *testing.T) {
		t.Setenv(config.EnvMetricsListen, "127.0.0.1:0")
		out, err := run(t, "3\n97\n", "assign", "--backend", "host", "--centroids", centroids)
		require.NoError(t, err)
		assert.Equal(t, "1,3,0\n2,97,100\n", out)
	})
}

func TestAssignRequiresCentroids(t *testing.T) {
	_, err := run(t, "1,1\n", "assign", "--backend", "host")
	assert.Error(t, err)
}

func TestDeviceCommand(t *testing.T) {
	out, err := run(t, "", "device", "--backend", "host")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:        host")
	assert.Contains(t, out, "Batch capacity: 4096 points at dimensionality 2")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "", "device", "--backend", "cuda")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "nearest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dimensionality: 3\nbatch_items: 5\n"), 0o644))
	out, err := run(t, "", "device", "--config", path, "--backend", "host")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch capacity: 5 points at dimensionality 3")

	out, err = run(t, "", "device", "--backend", "host", "--batch", "4611686018427387905")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch capacity: 4096 points at dimensionality 2")
}
