// Command seed-db loads a demo store with its menu, coupons and API keys.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/auth"
	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/storage/postgres"
)

type seedItem struct {
	category    string
	name        string
	description string
	price       int64
	veg         bool
}

var demoStore = store.Store{
	Slug:        "siddhi",
	Name:        "SIDDHI",
	Description: "BITE INTO HAPPINESS",
	Address:     "123 Main Street, City",
	Phone:       "+91 9876543210",
	Email:       "info@siddhi.com",
	IsActive:    true,
}

var demoCategories = []catalog.Category{
	{Name: "Starters", Slug: "starters", SortOrder: 1, IsActive: true},
	{Name: "Fast Food", Slug: "fast-food", SortOrder: 2, IsActive: true},
	{Name: "Main Course", Slug: "main-course", SortOrder: 3, IsActive: true},
	{Name: "Desserts", Slug: "desserts", SortOrder: 4, IsActive: true},
	{Name: "Beverages", Slug: "beverages", SortOrder: 5, IsActive: true},
}

var demoItems = []seedItem{
	{"starters", "Samosa", "Crispy fried pastry with spiced potato filling", 15, true},
	{"starters", "Pakora", "Deep-fried vegetable fritters", 20, true},
	{"fast-food", "Burger", "Juicy burger with fresh vegetables", 80, false},
	{"fast-food", "Pizza", "Delicious pizza with cheese and toppings", 120, true},
	{"main-course", "Dal Makhani", "Black lentils cooked with butter and cream", 150, true},
	{"main-course", "Butter Chicken", "Creamy tomato-based curry with chicken", 220, false},
	{"desserts", "Gulab Jamun", "Deep-fried milk-solid balls soaked in sugar syrup", 50, true},
	{"desserts", "Ice Cream", "Vanilla ice cream", 60, true},
	{"beverages", "Coca-Cola", "Refreshing soft drink", 30, true},
	{"beverages", "Fresh Lime Soda", "Sweet and tangy lime soda", 40, true},
}

func demoCoupons(storeID string) []coupon.Coupon {
	limit := 100
	return []coupon.Coupon{
		{
			StoreID:     storeID,
			Code:        "WELCOME10",
			Name:        "Welcome offer",
			Description: "10% off your order, up to 50",
			Type:        coupon.Percentage,
			Value:       decimal.NewFromInt(10),
			MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
			IsActive:    true,
		},
		{
			StoreID:        storeID,
			Code:           "FLAT50",
			Name:           "Flat 50",
			Description:    "50 off orders of 300 or more",
			Type:           coupon.FixedAmount,
			Value:          decimal.NewFromInt(50),
			MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(300)),
			UsageLimit:     &limit,
			IsActive:       true,
		},
	}
}

func main() {
	var (
		databaseURL  string
		staffKey     string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&staffKey, "staff-key", "", "staff API key allowed to update orders (or ORDERDESK_SEED_STAFF_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key (or ORDERDESK_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERDESK_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if staffKey == "" {
		staffKey = os.Getenv("ORDERDESK_SEED_STAFF_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("ORDERDESK_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORDERDESK_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := []auth.Key{}
	if staffKey != "" {
		keys = append(keys, auth.Key{
			ID:     "staff",
			Hash:   auth.Hash([]byte(apiKeyPepper), staffKey),
			Name:   "Kitchen staff",
			Scopes: []string{auth.ScopeOrders},
		})
	}
	if adminKey != "" {
		keys = append(keys, auth.Key{
			ID:     "admin",
			Hash:   auth.Hash([]byte(apiKeyPepper), adminKey),
			Name:   "Store admin",
			Scopes: []string{auth.ScopeAdmin},
		})
	}

	if err := run(ctx, databaseURL, keys); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, keys []auth.Key) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	tx := postgres.NewTxManager(pool)
	return tx.InTx(ctx, func(ctx context.Context) error {
		st := demoStore
		if err := postgres.NewStoreRepository(pool).Upsert(ctx, &st); err != nil {
			return errors.Wrap(err, "seed store")
		}
		slog.Info("upserted store", slog.String("slug", st.Slug), slog.String("id", st.ID))

		if err := seedMenu(ctx, postgres.NewCatalogRepository(pool), st.ID); err != nil {
			return errors.Wrap(err, "seed menu")
		}

		coupons := demoCoupons(st.ID)
		for i := range coupons {
			if err := coupon.Validate(&coupons[i]); err != nil {
				return errors.Wrapf(err, "coupon %s", coupons[i].Code)
			}
		}
		if err := postgres.NewCouponRepository(pool).UpsertMany(ctx, coupons); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		slog.Info("upserted coupons", slog.Int("count", len(coupons)))

		apiKeys := postgres.NewAPIKeyRepository(pool)
		for _, k := range keys {
			if err := apiKeys.Upsert(ctx, k); err != nil {
				return errors.Wrap(err, "seed api key")
			}
			slog.Info("upserted API key", slog.String("id", k.ID), slog.Any("scopes", k.Scopes))
		}
		if len(keys) == 0 {
			slog.Warn("no API keys seeded: order updates and admin routes will reject every request")
		}
		return nil
	})
}

// seedMenu upserts categories and adds items missing by name, so reruns do
// not duplicate the menu or reset availability toggled by an admin.
func seedMenu(ctx context.Context, repo *postgres.CatalogRepository, storeID string) error {
	categoryIDs := make(map[string]string, len(demoCategories))
	for _, c := range demoCategories {
		c.StoreID = storeID
		if err := repo.UpsertCategory(ctx, &c); err != nil {
			return err
		}
		categoryIDs[c.Slug] = c.ID
	}

	existing, err := repo.ListItems(ctx, storeID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, it := range existing {
		have[it.Name] = true
	}

	var created int
	for i, it := range demoItems {
		if have[it.name] {
			continue
		}
		item := &catalog.MenuItem{
			StoreID:     storeID,
			CategoryID:  categoryIDs[it.category],
			Name:        it.name,
			Description: it.description,
			Price:       decimal.NewFromInt(it.price),
			IsAvailable: true,
			IsVeg:       it.veg,
			SortOrder:   i + 1,
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return err
		}
		created++
	}
	slog.Info("seeded menu",
		slog.Int("categories", len(demoCategories)),
		slog.Int("items_created", created),
		slog.Int("items_existing", len(existing)),
	)
	return nil
}
