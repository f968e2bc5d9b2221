package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"golang.org/x/sync/errgroup"

	"github.com/calyxdb/calyx/internal/column"
	"github.com/calyxdb/calyx/internal/config"
	"github.com/calyxdb/calyx/internal/logger"
	"github.com/calyxdb/calyx/internal/tsbucket"
)

// Version is set at build time
var Version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `calyx %s - time-series bucket decode engine

Usage:
  calyx unpack [flags] FILE...    unpack buckets into one JSON document per measurement
  calyx count [flags] FILE...     count measurements without decoding columns
  calyx compress [flags] FILE     rewrite version-1 buckets with compressed columns

Input files are streams of concatenated BSON bucket documents.
`, Version)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := column.SetEncoderLevel(cfg.Codec.CompressionLevel); err != nil {
		log.Fatal().Err(err).Msg("Invalid codec configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "unpack":
		err = runUnpack(ctx, cfg, os.Args[2:])
	case "count":
		err = runCount(ctx, cfg, os.Args[2:])
	case "compress":
		err = runCompress(ctx, cfg, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

// unpackFlags overlays command-line flags onto the loaded unpack config.
func unpackFlags(fs *flag.FlagSet, cfg *config.UnpackConfig) *string {
	fields := fs.String("fields", strings.Join(cfg.Fields, ","), "comma-separated projection field set")
	fs.StringVar(&cfg.TimeField, "time-field", cfg.TimeField, "bucket time field name")
	fs.StringVar(&cfg.MetaField, "meta-field", cfg.MetaField, "bucket meta field name (empty = none)")
	fs.StringVar(&cfg.Behavior, "behavior", cfg.Behavior, "projection mode: include or exclude")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of files processed concurrently")
	fs.BoolVar(&cfg.SkipMalformed, "skip-malformed", cfg.SkipMalformed, "skip malformed buckets instead of aborting")
	return fields
}

func buildSpec(cfg *config.UnpackConfig, fieldsFlag string) (tsbucket.Spec, tsbucket.Behavior, error) {
	var fields []string
	for _, f := range strings.Split(fieldsFlag, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}

	behavior := tsbucket.Exclude
	switch cfg.Behavior {
	case "include":
		behavior = tsbucket.Include
	case "exclude":
	default:
		return tsbucket.Spec{}, behavior, fmt.Errorf("invalid behavior %q", cfg.Behavior)
	}
	return tsbucket.NewSpec(cfg.TimeField, cfg.MetaField, fields...), behavior, nil
}

func runUnpack(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	fields := unpackFlags(fs, &cfg.Unpack)
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return fmt.Errorf("unpack: no input files")
	}

	spec, behavior, err := buildSpec(&cfg.Unpack, *fields)
	if err != nil {
		return err
	}

	// Files decode concurrently; output is buffered per file and flushed in
	// argument order so concurrency never reorders measurements.
	outputs := make([]bytes.Buffer, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Unpack.Workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			return unpackFile(ctx, spec, behavior, &cfg.Unpack, path, &outputs[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range outputs {
		if _, err := outputs[i].WriteTo(os.Stdout); err != nil {
			return err
		}
	}
	return nil
}

func unpackFile(ctx context.Context, spec tsbucket.Spec, behavior tsbucket.Behavior, cfg *config.UnpackConfig, path string, out *bytes.Buffer) error {
	lg := logger.Get("unpack").With().Str("file", path).Logger()
	// Each file worker gets its own spec copy; New mutates the field set.
	unpacker := tsbucket.New(spec.Clone(), behavior, lg)

	buckets, err := readBuckets(path)
	if err != nil {
		return err
	}

	var measurements int
	for n, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := unpacker.Reset(bucket); err != nil {
			if cfg.SkipMalformed {
				lg.Warn().Err(err).Int("bucket", n).Msg("Skipping bucket")
				continue
			}
			return fmt.Errorf("%s: bucket %d: %w", path, n, err)
		}
		for unpacker.HasNext() {
			fmt.Fprintln(out, unpacker.Next().String())
			measurements++
		}
	}

	lg.Info().Int("buckets", len(buckets)).Int("measurements", measurements).Msg("File unpacked")
	return nil
}

func runCount(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	fs.StringVar(&cfg.Unpack.TimeField, "time-field", cfg.Unpack.TimeField, "bucket time field name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return fmt.Errorf("count: no input files")
	}

	var total int
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		buckets, err := readBuckets(path)
		if err != nil {
			return err
		}
		var fileTotal int
		for n, bucket := range buckets {
			count, err := tsbucket.MeasurementCount(bucket, cfg.Unpack.TimeField)
			if err != nil {
				return fmt.Errorf("%s: bucket %d: %w", path, n, err)
			}
			fileTotal += count
		}
		fmt.Printf("%s: %d\n", path, fileTotal)
		total += fileTotal
	}
	if len(files) > 1 {
		fmt.Printf("total: %d\n", total)
	}
	return nil
}

func runCompress(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	outPath := fs.String("o", "", "output file (default stdout)")
	fs.StringVar(&cfg.Unpack.TimeField, "time-field", cfg.Unpack.TimeField, "bucket time field name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("compress: exactly one input file required")
	}
	path := fs.Arg(0)

	buckets, err := readBuckets(path)
	if err != nil {
		return err
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	lg := logger.Get("compress")
	var inBytes, outBytes int
	for n, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		compressed, err := tsbucket.Compress(bucket, cfg.Unpack.TimeField)
		if err != nil {
			return fmt.Errorf("%s: bucket %d: %w", path, n, err)
		}
		if _, err := out.Write(compressed); err != nil {
			return err
		}
		inBytes += len(bucket)
		outBytes += len(compressed)
	}

	lg.Info().
		Str("file", path).
		Int("buckets", len(buckets)).
		Int("bytes_in", inBytes).
		Int("bytes_out", outBytes).
		Msg("Buckets compressed")
	return nil
}

// readBuckets reads a stream of concatenated BSON documents from a file.
func readBuckets(path string) ([]bson.Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buckets []bson.Raw
	rest := data
	for len(rest) > 0 {
		doc, remaining, ok := bsoncore.ReadDocument(rest)
		if !ok {
			return nil, fmt.Errorf("%s: truncated document at offset %d", path, len(data)-len(rest))
		}
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: invalid document at offset %d: %w", path, len(data)-len(rest), err)
		}
		buckets = append(buckets, bson.Raw(doc))
		rest = remaining
	}

	readerLog := logger.Get("reader")
	readerLog.Debug().Str("file", path).Int("buckets", len(buckets)).Msg("File read")
	return buckets, nil
}
