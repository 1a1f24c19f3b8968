package handler

import (
	"net/http"
	"time"

	"github.com/xenking/orderdesk/internal/domain/catalog"
	"github.com/xenking/orderdesk/internal/domain/store"
)

type storeJSON struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

func toStoreJSON(s *store.Store) storeJSON {
	return storeJSON{
		ID:          s.ID,
		Slug:        s.Slug,
		Name:        s.Name,
		Description: s.Description,
		Address:     s.Address,
		Phone:       s.Phone,
		Email:       s.Email,
	}
}

type categoryJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    bool   `json:"isActive"`
}

func toCategoryJSON(c catalog.Category) categoryJSON {
	return categoryJSON{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		SortOrder:   c.SortOrder,
		IsActive:    c.IsActive,
	}
}

type menuItemJSON struct {
	ID           string    `json:"id"`
	CategoryID   string    `json:"categoryId"`
	CategoryName string    `json:"categoryName,omitempty"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Price        money     `json:"price"`
	Size         string    `json:"size,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	IsAvailable  bool      `json:"isAvailable"`
	IsVeg        bool      `json:"isVeg"`
	SortOrder    int       `json:"sortOrder"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toMenuItemJSON(it catalog.MenuItem) menuItemJSON {
	return menuItemJSON{
		ID:           it.ID,
		CategoryID:   it.CategoryID,
		CategoryName: it.CategoryName,
		Name:         it.Name,
		Description:  it.Description,
		Price:        money(it.Price),
		Size:         it.Size,
		ImageURL:     it.ImageURL,
		IsAvailable:  it.IsAvailable,
		IsVeg:        it.IsVeg,
		SortOrder:    it.SortOrder,
		CreatedAt:    it.CreatedAt,
	}
}

func toMenuItemsJSON(items []catalog.MenuItem) []menuItemJSON {
	out := make([]menuItemJSON, len(items))
	for i, it := range items {
		out[i] = toMenuItemJSON(it)
	}
	return out
}

type menuSectionJSON struct {
	categoryJSON
	Items []menuItemJSON `json:"items"`
}

type menuResponse struct {
	Store      storeJSON         `json:"store"`
	Categories []menuSectionJSON `json:"categories"`
}

func (h *Handler) menu(w http.ResponseWriter, r *http.Request) {
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sections, err := h.catalog.Menu(r.Context(), st.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := menuResponse{
		Store:      toStoreJSON(st),
		Categories: make([]menuSectionJSON, len(sections)),
	}
	for i, s := range sections {
		resp.Categories[i] = menuSectionJSON{
			categoryJSON: toCategoryJSON(s.Category),
			Items:        toMenuItemsJSON(s.Items),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchResponse struct {
	Items []menuItemJSON `json:"items"`
	Total int            `json:"total"`
}

func (h *Handler) searchMenu(w http.ResponseWriter, r *http.Request) {
	st, err := h.store(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.catalog.Search(r.Context(), st.ID, r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: toMenuItemsJSON(items), Total: len(items)})
}
