// Command coupon-import loads coupon codes from gzipped lists into a store.
//
// Every code gets the same discount definition taken from the flags. Codes
// that already exist in the store have their definition replaced while their
// usage count is kept.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/storage/postgres"
)

// template is the discount definition shared by all imported codes.
type template struct {
	Name        string
	Description string
	Type        string
	Value       string
	MinOrder    string
	MaxDiscount string
	UsageLimit  int
	ValidFrom   string
	ValidUntil  string
}

// build returns the coupon for code in storeID.
func (t template) build(storeID, code string) (coupon.Coupon, error) {
	c := coupon.Coupon{
		StoreID:     storeID,
		Code:        code,
		Name:        t.Name,
		Description: t.Description,
		Type:        coupon.Type(t.Type),
		IsActive:    true,
	}
	if c.Name == "" {
		c.Name = code
	}

	var err error
	if c.Value, err = decimal.NewFromString(t.Value); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse value")
	}
	if t.MinOrder != "" {
		v, err := decimal.NewFromString(t.MinOrder)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "parse min order")
		}
		c.MinOrderAmount = decimal.NewNullDecimal(v)
	}
	if t.MaxDiscount != "" {
		v, err := decimal.NewFromString(t.MaxDiscount)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "parse max discount")
		}
		c.MaxDiscount = decimal.NewNullDecimal(v)
	}
	if t.UsageLimit > 0 {
		limit := t.UsageLimit
		c.UsageLimit = &limit
	}
	if c.ValidFrom, err = parseTime(t.ValidFrom); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse valid-from")
	}
	if c.ValidUntil, err = parseTime(t.ValidUntil); err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse valid-until")
	}

	if err := coupon.Validate(&c); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func main() {
	var (
		databaseURL string
		storeSlug   string
		revoked     string
		batchSize   int
		dryRun      bool
		tpl         template
		opts        scanOptions
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&storeSlug, "store", "siddhi", "slug of the store receiving the codes")
	flag.StringVar(&revoked, "revoked", "", "gzipped list of codes that must not be imported")
	flag.IntVar(&batchSize, "batch", 1000, "coupons per database batch")
	flag.BoolVar(&dryRun, "dry-run", false, "scan and validate without writing")

	flag.StringVar(&tpl.Name, "name", "", "coupon name (defaults to the code)")
	flag.StringVar(&tpl.Description, "description", "", "coupon description")
	flag.StringVar(&tpl.Type, "type", string(coupon.Percentage), "PERCENTAGE or FIXED_AMOUNT")
	flag.StringVar(&tpl.Value, "value", "10", "percent or fixed amount")
	flag.StringVar(&tpl.MinOrder, "min-order", "", "minimum order subtotal")
	flag.StringVar(&tpl.MaxDiscount, "max-discount", "", "cap on a percentage discount")
	flag.IntVar(&tpl.UsageLimit, "usage-limit", 0, "redemptions per code, 0 for unlimited")
	flag.StringVar(&tpl.ValidFrom, "valid-from", "", "RFC 3339 start of the validity window")
	flag.StringVar(&tpl.ValidUntil, "valid-until", "", "RFC 3339 end of the validity window")

	flag.IntVar(&opts.MinLen, "min-len", 4, "shortest accepted code")
	flag.IntVar(&opts.MaxLen, "max-len", 32, "longest accepted code")
	flag.UintVar(&opts.RevokedEstimate, "revoked-estimate", 10_000_000, "expected number of revoked codes")
	flag.Float64Var(&opts.FalsePositive, "bloom-fpr", 0.001, "revoked filter false positive rate")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: coupon-import [flags] codes1.gz [codes2.gz ...]")
		os.Exit(2)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, storeSlug, files, revoked, tpl, opts, batchSize, dryRun); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(
	ctx context.Context,
	databaseURL, storeSlug string,
	files []string,
	revoked string,
	tpl template,
	opts scanOptions,
	batchSize int,
	dryRun bool,
) error {
	// Fail on a bad template before reading gigabytes of codes.
	if _, err := tpl.build("", "PROBE"); err != nil {
		return errors.Wrap(err, "coupon template")
	}

	res, err := collectCodes(ctx, files, revoked, opts)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}
	slices.Sort(res.Codes)
	slog.Info("codes collected",
		slog.Int("lines", res.Seen),
		slog.Int("rejected", res.Rejected),
		slog.Int("revoked", res.Revoked),
		slog.Int("importable", len(res.Codes)),
	)

	if dryRun || len(res.Codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st, err := postgres.NewStoreRepository(pool).GetBySlug(ctx, storeSlug)
	if err != nil {
		return errors.Wrapf(err, "find store %q", storeSlug)
	}

	repo := postgres.NewCouponRepository(pool)
	for chunk := range slices.Chunk(res.Codes, batchSize) {
		batch := make([]coupon.Coupon, len(chunk))
		for i, code := range chunk {
			if batch[i], err = tpl.build(st.ID, code); err != nil {
				return errors.Wrapf(err, "coupon %s", code)
			}
		}
		if err := repo.UpsertMany(ctx, batch); err != nil {
			return errors.Wrap(err, "write coupons")
		}
		slog.Info("write progress", slog.Int("written", len(batch)), slog.String("last", chunk[len(chunk)-1]))
	}

	return nil
}
