package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockidx"
	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/block"
	"github.com/hupe1980/blockidx/config"
	"github.com/hupe1980/blockidx/types"
)

// newTable writes a local table with two segments and returns a config file for it.
func newTable(t *testing.T) (cfgPath string, tbl *blockidx.Table) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	tbl, err := blockidx.Open(ctx, blobstore.NewLocalStore(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })

	schema := types.NewSchema(
		types.NewField("id", types.Int64),
		types.NewField("city", types.String),
	)
	for s := range 2 {
		var blocks []*block.DataBlock
		for j := range 3 {
			city := fmt.Sprintf("city-%d-%d", s, j)
			b, err := block.NewDataBlock(
				block.Int64s(int64(s*100+j*10), int64(s*100+j*10+1)),
				block.Strings(city, city),
			)
			require.NoError(t, err)
			blocks = append(blocks, b)
		}
		_, err := tbl.Append(ctx, schema, blocks...)
		require.NoError(t, err)
	}

	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  backend: local\n  path: "+dir+"\nlog:\n  level: error\n"), 0o600))
	return cfgPath, tbl
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestInspect(t *testing.T) {
	cfg, tbl := newTable(t)

	out, err := runCmd(t, "-config", cfg, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, tbl.Current().SnapshotID.String())
	assert.Contains(t, out, `"row_count": 12`)
	assert.Contains(t, out, `"format_version": 3`)
}

func TestHistory(t *testing.T) {
	cfg, _ := newTable(t)

	out, err := runCmd(t, "-config", cfg, "history")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SNAPSHOT"))

	out, err = runCmd(t, "-config", cfg, "history", "-n", "1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestSegmentsAndIndex(t *testing.T) {
	cfg, tbl := newTable(t)

	out, err := runCmd(t, "-config", cfg, "segments")
	require.NoError(t, err)
	for _, loc := range tbl.Current().Segments {
		assert.Contains(t, out, loc.Path)
	}

	seg, err := tbl.Segment(context.Background(), tbl.Current().Segments[0])
	require.NoError(t, err)
	require.True(t, seg.Blocks[0].HasIndex())

	out, err = runCmd(t, "-config", cfg, "index", seg.Blocks[0].BloomFilterIndexLocation.Path)
	require.NoError(t, err)
	assert.Contains(t, out, "hasher: xxhash64")
	assert.Contains(t, out, "city")

	_, err = runCmd(t, "-config", cfg, "index")
	assert.ErrorIs(t, err, errUsage)
}

func TestPrune(t *testing.T) {
	cfg, _ := newTable(t)

	out, err := runCmd(t, "-config", cfg, "prune", "-column", "city", "-value", "city-1-2")
	require.NoError(t, err)
	assert.Contains(t, out, "blocks: 6")
	assert.Contains(t, out, "_b/")

	_, err = runCmd(t, "-config", cfg, "prune", "-column", "nope", "-value", "x")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "-config", cfg, "prune", "-column", "id", "-value", "x")
	assert.ErrorIs(t, err, errUsage)
}

func TestUsage(t *testing.T) {
	_, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)

	cfg, _ := newTable(t)
	_, err = runCmd(t, "-config", cfg, "frobnicate")
	assert.ErrorIs(t, err, errUsage)
}

func TestEmptyTable(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  backend: memory\n"), 0o600))

	_, err := runCmd(t, "-config", cfgPath, "inspect")
	assert.ErrorIs(t, err, blockidx.ErrNotFound)

	out, err := runCmd(t, "-config", cfgPath, "history")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	s, err := openStorage(ctx, config.StorageConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, s)

	s, err = openStorage(ctx, config.StorageConfig{Backend: config.BackendLocal, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	_, err = openStorage(ctx, config.StorageConfig{Backend: "tape"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		typ  types.DataType
		want types.Scalar
	}{
		{"berlin", types.String, types.NewString("berlin")},
		{"true", types.Boolean, types.NewBool(true)},
		{"-7", types.Int32, types.NewInt32(-7)},
		{"7", types.UInt16, types.NewUInt16(7)},
		{"1.5", types.Float64, types.NewFloat64(1.5)},
		{"1970-01-03", types.Date, types.NewDate(2)},
		{"2024-05-01T10:00:00Z", types.Timestamp, types.NewTimestamp(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			got, err := parseScalar(tt.in, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseScalar("x", types.Int64)
	assert.Error(t, err)
	_, err = parseScalar("x", types.ArrayOf(types.Int64))
	assert.Error(t, err)
}
