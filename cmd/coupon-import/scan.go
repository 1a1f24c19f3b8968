package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const progressEvery = 10_000_000

// scanOptions bound the codes accepted from the input files.
type scanOptions struct {
	MinLen int
	MaxLen int
	// RevokedEstimate sizes the revoked-code bloom filter.
	RevokedEstimate uint
	FalsePositive   float64
}

// scanResult is the outcome of collecting codes.
type scanResult struct {
	Codes    []string
	Seen     int
	Rejected int
	Revoked  int
}

// normalizeCode trims a line and reports whether it is an acceptable code.
// Codes are matched exactly at checkout, so case is kept.
func normalizeCode(line string, opts scanOptions) (string, bool) {
	code := strings.TrimSpace(line)
	if len(code) < opts.MinLen || len(code) > opts.MaxLen {
		return "", false
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return "", false
		}
	}
	return code, true
}

// collectCodes reads the code files concurrently and drops codes listed in
// the revoked file.
//
// The revoked list can be much larger than the import, so it is first
// loaded into a bloom filter. Imported codes that hit the filter are only
// suspects; a second pass over the revoked file confirms them exactly.
func collectCodes(ctx context.Context, files []string, revokedFile string, opts scanOptions) (*scanResult, error) {
	var filter *bloom.BloomFilter
	if revokedFile != "" {
		slog.Info("pass 1: loading revoked codes", slog.String("file", revokedFile))
		f, err := buildRevokedFilter(ctx, revokedFile, opts)
		if err != nil {
			return nil, errors.Wrap(err, "build revoked filter")
		}
		filter = f
	}

	slog.Info("pass 2: scanning code files", slog.Int("files", len(files)))
	perFile := make([]fileCodes, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			fc, err := scanCodeFile(gctx, path, filter, opts)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			perFile[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &scanResult{}
	codes := make(map[string]struct{})
	suspects := make(map[string]struct{})
	for _, fc := range perFile {
		res.Seen += fc.seen
		res.Rejected += fc.rejected
		for c := range fc.codes {
			codes[c] = struct{}{}
		}
		for c := range fc.suspects {
			suspects[c] = struct{}{}
		}
	}

	if len(suspects) > 0 {
		slog.Info("pass 3: confirming revoked suspects", slog.Int("suspects", len(suspects)))
		revoked, err := confirmRevoked(ctx, revokedFile, suspects, opts)
		if err != nil {
			return nil, errors.Wrap(err, "confirm revoked codes")
		}
		for c := range revoked {
			delete(codes, c)
		}
		res.Revoked = len(revoked)
	}

	res.Codes = make([]string, 0, len(codes))
	for c := range codes {
		res.Codes = append(res.Codes, c)
	}
	return res, nil
}

type fileCodes struct {
	codes    map[string]struct{}
	suspects map[string]struct{}
	seen     int
	rejected int
}

func buildRevokedFilter(ctx context.Context, path string, opts scanOptions) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(opts.RevokedEstimate, opts.FalsePositive)
	var count uint64
	err := streamGzFile(ctx, path, func(line string) {
		code, ok := normalizeCode(line, opts)
		if !ok {
			return
		}
		filter.AddString(code)
		count++
		if count%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.Uint64("codes", count))
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Info("pass 1 complete", slog.Uint64("revoked_codes", count))
	return filter, nil
}

func scanCodeFile(ctx context.Context, path string, filter *bloom.BloomFilter, opts scanOptions) (fileCodes, error) {
	fc := fileCodes{
		codes:    make(map[string]struct{}),
		suspects: make(map[string]struct{}),
	}
	err := streamGzFile(ctx, path, func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		fc.seen++
		code, ok := normalizeCode(line, opts)
		if !ok {
			fc.rejected++
			return
		}
		fc.codes[code] = struct{}{}
		if filter != nil && filter.TestString(code) {
			fc.suspects[code] = struct{}{}
		}
	})
	if err != nil {
		return fileCodes{}, err
	}
	slog.Info("pass 2 file complete",
		slog.String("file", path),
		slog.Int("codes", len(fc.codes)),
		slog.Int("rejected", fc.rejected),
		slog.Int("suspects", len(fc.suspects)),
	)
	return fc, nil
}

func confirmRevoked(ctx context.Context, path string, suspects map[string]struct{}, opts scanOptions) (map[string]struct{}, error) {
	revoked := make(map[string]struct{})
	err := streamGzFile(ctx, path, func(line string) {
		code, ok := normalizeCode(line, opts)
		if !ok {
			return
		}
		if _, ok := suspects[code]; ok {
			revoked[code] = struct{}{}
		}
	})
	return revoked, err
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
