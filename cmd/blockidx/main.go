// blockidx inspects tables written with the blockidx library.
//
// The table location and tuning knobs come from config.yaml (or the file given with
// -config) and BLOCKIDX_* environment variables, e.g. BLOCKIDX_STORAGE_BACKEND=s3.
//
// Usage:
//
//	blockidx [-config file] inspect
//	blockidx [-config file] history [-n 20]
//	blockidx [-config file] segments
//	blockidx [-config file] index <path>
//	blockidx [-config file] prune -column city -value Berlin
//
// Exit code 0 on success, 1 on any error, 2 on bad usage.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/blockidx"
	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/config"
	"github.com/hupe1980/blockidx/expr"
	"github.com/hupe1980/blockidx/index"
	"github.com/hupe1980/blockidx/types"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "blockidx:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("blockidx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default ./config.yaml if present)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: blockidx [-config file] inspect|history|segments|index|prune", errUsage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	blobs, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	cdc, err := cfg.Codec()
	if err != nil {
		return err
	}

	tbl, err := blockidx.Open(ctx, blobs,
		blockidx.WithCodec(cdc),
		blockidx.WithCompression(cfg.Snapshot.Compression),
		blockidx.WithCacheBytes(cfg.Prune.CacheBytes),
		blockidx.WithMaxConcurrentReads(cfg.Prune.MaxConcurrentReads),
		blockidx.WithReadBytesPerSec(cfg.Prune.ReadBytesPerSec),
		blockidx.WithConcurrency(cfg.Prune.Concurrency),
		blockidx.WithLogger(logger.WithTable(tableName(cfg.Storage))),
	)
	if err != nil {
		return err
	}
	defer tbl.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "inspect":
		return inspect(tbl, stdout)
	case "history":
		return history(ctx, tbl, rest, stdout, stderr)
	case "segments":
		return segments(ctx, tbl, stdout)
	case "index":
		return describeIndex(ctx, blobs, rest, stdout)
	case "prune":
		return pruneCmd(ctx, tbl, rest, stdout, stderr)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*blockidx.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return blockidx.NewLogger(slog.NewJSONHandler(w, opts)), nil
	}
	return blockidx.NewLogger(slog.NewTextHandler(w, opts)), nil
}

func tableName(cfg config.StorageConfig) string {
	switch cfg.Backend {
	case config.BackendLocal:
		return cfg.Path
	case config.BackendMemory:
		return "memory"
	default:
		return cfg.Bucket + "/" + cfg.Prefix
	}
}

func inspect(tbl *blockidx.Table, w io.Writer) error {
	snap := tbl.Current()
	if snap == nil {
		return fmt.Errorf("%w: table has no snapshot", blockidx.ErrNotFound)
	}
	out := struct {
		SnapshotID    string       `json:"snapshot_id"`
		FormatVersion uint64       `json:"format_version"`
		Timestamp     *time.Time   `json:"timestamp,omitempty"`
		Parent        string       `json:"parent,omitempty"`
		Schema        types.Schema `json:"schema"`
		Summary       any          `json:"summary"`
		Segments      []string     `json:"segments"`
	}{
		SnapshotID:    snap.SnapshotID.String(),
		FormatVersion: snap.FormatVersion(),
		Timestamp:     snap.Timestamp,
		Schema:        snap.Schema,
		Summary:       snap.Summary,
	}
	if snap.PrevSnapshotID != nil {
		out.Parent = snap.PrevSnapshotID.ID.String()
	}
	for _, s := range snap.Segments {
		out.Segments = append(out.Segments, s.Path)
	}
	data, err := gojson.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func history(ctx context.Context, tbl *blockidx.Table, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	n := fs.Int("n", 20, "number of snapshots, 0 for all")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	h, err := tbl.History(ctx, *n)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tVERSION\tTIMESTAMP\tSEGMENTS\tBLOCKS\tROWS\tINDEX BYTES")
	for _, s := range h {
		ts := "-"
		if s.Timestamp != nil {
			ts = s.Timestamp.Format(time.RFC3339Nano)
		}
		fmt.Fprintf(tw, "%s\tv%d\t%s\t%d\t%d\t%d\t%d\n",
			s.SnapshotID, s.FormatVersion, ts, s.SegmentCount, s.BlockCount, s.RowCount, s.IndexSize)
	}
	return tw.Flush()
}

func segments(ctx context.Context, tbl *blockidx.Table, w io.Writer) error {
	snap := tbl.Current()
	if snap == nil {
		return fmt.Errorf("%w: table has no snapshot", blockidx.ErrNotFound)
	}
	ordinals := tbl.SegmentOrdinals()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDINAL\tSEGMENT\tBLOCKS\tINDEXED\tROWS")
	for i := len(snap.Segments) - 1; i >= 0; i-- {
		loc := snap.Segments[i]
		seg, err := tbl.Segment(ctx, loc)
		if err != nil {
			return err
		}
		indexed := 0
		for _, bm := range seg.Blocks {
			if bm.HasIndex() {
				indexed++
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", ordinals[loc.Path], loc.Path, len(seg.Blocks), indexed, seg.Summary.RowCount)
	}
	return tw.Flush()
}

func describeIndex(ctx context.Context, blobs blobstore.BlobStore, args []string, w io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: blockidx index <path>", errUsage)
	}
	data, err := blobstore.ReadAll(ctx, blobs, args[0])
	if err != nil {
		return err
	}
	bf, err := index.Load(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "hasher: %s\nbytes: %d\n", bf.Hasher(), bf.SizeBytes())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tKIND\tFILTER BYTES")
	for _, name := range bf.Columns() {
		f, _, err := bf.Filter(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", name, f.Kind(), f.SizeBytes())
	}
	return tw.Flush()
}

func pruneCmd(ctx context.Context, tbl *blockidx.Table, args []string, w, stderr io.Writer) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	fs.SetOutput(stderr)
	column := fs.String("column", "", "column compared for equality")
	value := fs.String("value", "", "literal the column must equal")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	snap := tbl.Current()
	if snap == nil {
		return fmt.Errorf("%w: table has no snapshot", blockidx.ErrNotFound)
	}
	field, ok := snap.Schema.FieldByName(*column)
	if !ok {
		return fmt.Errorf("%w: unknown column %q", errUsage, *column)
	}
	lit, err := parseScalar(*value, field.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	res, err := tbl.Prune(ctx, expr.Eq(expr.Col(field.Name, field.Type), expr.Lit(lit)))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "blocks: %d pruned: %d kept: %d (%s)\n",
		res.Stats.Blocks, res.Stats.Pruned, res.Kept(), res.Stats.Duration)
	for _, bm := range res.KeptBlocks() {
		fmt.Fprintln(w, bm.Location.Path)
	}
	return nil
}

// parseScalar parses s as a literal of type t.
func parseScalar(s string, t types.DataType) (types.Scalar, error) {
	k := t.Kind
	switch {
	case k == types.KindString:
		return types.NewString(s), nil
	case k == types.KindBoolean:
		b, err := strconv.ParseBool(s)
		return types.NewBool(b), err
	case k.IsSignedInteger():
		v, err := strconv.ParseInt(s, 10, 64)
		return types.Scalar{Kind: k, I64: v}, err
	case k.IsUnsignedInteger():
		v, err := strconv.ParseUint(s, 10, 64)
		return types.Scalar{Kind: k, U64: v}, err
	case k.IsFloat():
		v, err := strconv.ParseFloat(s, 64)
		return types.Scalar{Kind: k, F64: v}, err
	case k == types.KindDate:
		d, err := time.Parse(time.DateOnly, s)
		return types.NewDate(int32(d.Unix() / 86400)), err
	case k == types.KindTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, s)
		return types.NewTimestamp(ts), err
	default:
		return types.Scalar{}, fmt.Errorf("cannot parse %s literal %q", strings.ToLower(k.String()), s)
	}
}
