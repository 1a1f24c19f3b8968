package catalog

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/domain/store"
	"github.com/xenking/orderdesk/internal/domain/validation"
	"github.com/xenking/orderdesk/internal/notify"
)

const searchLimit = 20

// Section is a category together with its available items.
type Section struct {
	Category Category
	Items    []MenuItem
}

// Stats summarises a store's menu.
type Stats struct {
	Total      int
	Available  int
	OutOfStock int
}

// NewItem is the admin input for a menu item.
type NewItem struct {
	CategoryID  string
	Name        string
	Description string
	Price       decimal.Decimal
	Size        string
	ImageURL    string
	IsVeg       bool
	IsAvailable bool
	SortOrder   int
}

// Service reads the menu for customers and orders and manages it for admins.
type Service struct {
	repo   Repository
	events notify.Publisher
}

// NewService creates a catalog Service.
func NewService(repo Repository, events notify.Publisher) *Service {
	return &Service{repo: repo, events: events}
}

// GetAvailableItem resolves itemID within the store and checks that it can be
// ordered. Errors wrap ErrItemNotFound or ErrItemUnavailable in an *ItemError.
func (s *Service) GetAvailableItem(ctx context.Context, storeID, itemID string) (*MenuItem, error) {
	item, err := s.repo.GetItem(ctx, storeID, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, &ItemError{ItemID: itemID, Err: ErrItemNotFound}
		}
		return nil, errors.Wrapf(err, "get menu item %s", itemID)
	}
	if !item.IsAvailable {
		return nil, &ItemError{ItemID: itemID, Name: item.Name, Err: ErrItemUnavailable}
	}
	return item, nil
}

// Menu returns the store's active categories in display order, each with its
// available items.
func (s *Service) Menu(ctx context.Context, storeID string) ([]Section, error) {
	categories, err := s.repo.ListCategories(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	items, err := s.repo.ListItems(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}

	byCategory := make(map[string][]MenuItem, len(categories))
	for _, it := range items {
		if it.IsAvailable {
			byCategory[it.CategoryID] = append(byCategory[it.CategoryID], it)
		}
	}

	sections := make([]Section, 0, len(categories))
	for _, c := range categories {
		if !c.IsActive {
			continue
		}
		sections = append(sections, Section{Category: c, Items: byCategory[c.ID]})
	}
	return sections, nil
}

// Search finds available items whose name or description contains query.
func (s *Service) Search(ctx context.Context, storeID, query string) ([]MenuItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	items, err := s.repo.SearchItems(ctx, storeID, query, searchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "search items")
	}
	return items, nil
}

// Items lists every menu item of the store, available or not.
func (s *Service) Items(ctx context.Context, storeID string) ([]MenuItem, Stats, error) {
	items, err := s.repo.ListItems(ctx, storeID)
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "list items")
	}
	return items, statsOf(items), nil
}

// Categories lists the store's categories including inactive ones.
func (s *Service) Categories(ctx context.Context, storeID string) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return categories, nil
}

// CreateItem validates and stores a new menu item, then announces it on the
// store channel.
func (s *Service) CreateItem(ctx context.Context, st *store.Store, in NewItem) (*MenuItem, Stats, error) {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, Stats{}, validation.New("name", "required")
	case in.CategoryID == "":
		return nil, Stats{}, validation.New("categoryId", "required")
	case in.Price.IsNegative():
		return nil, Stats{}, validation.New("price", "must not be negative")
	}

	category, err := s.repo.GetCategory(ctx, st.ID, in.CategoryID)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, Stats{}, err
		}
		return nil, Stats{}, errors.Wrap(err, "get category")
	}

	item := &MenuItem{
		StoreID:      st.ID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Name:         in.Name,
		Description:  strings.TrimSpace(in.Description),
		Price:        in.Price.Round(2),
		Size:         in.Size,
		ImageURL:     in.ImageURL,
		IsAvailable:  in.IsAvailable,
		IsVeg:        in.IsVeg,
		SortOrder:    in.SortOrder,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, Stats{}, errors.Wrap(err, "create item")
	}

	s.events.Publish(ctx, notify.Event{
		Channel: notify.StoreChannel(st.Slug),
		Name:    notify.MenuItemCreated,
		Data: notify.MenuItemData{
			ItemID:       item.ID,
			Name:         item.Name,
			Price:        item.Price,
			CategoryName: item.CategoryName,
			IsAvailable:  item.IsAvailable,
		},
	})

	_, stats, err := s.Items(ctx, st.ID)
	if err != nil {
		return nil, Stats{}, err
	}
	return item, stats, nil
}

// SetAvailability marks an item as in or out of stock.
func (s *Service) SetAvailability(ctx context.Context, storeID, itemID string, available bool) (*MenuItem, Stats, error) {
	item, err := s.repo.SetAvailability(ctx, storeID, itemID, available)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, Stats{}, &ItemError{ItemID: itemID, Err: ErrItemNotFound}
		}
		return nil, Stats{}, errors.Wrap(err, "set availability")
	}
	_, stats, err := s.Items(ctx, storeID)
	if err != nil {
		return nil, Stats{}, err
	}
	return item, stats, nil
}

func statsOf(items []MenuItem) Stats {
	st := Stats{Total: len(items)}
	for _, it := range items {
		if it.IsAvailable {
			st.Available++
		} else {
			st.OutOfStock++
		}
	}
	return st
}
