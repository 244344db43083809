// Package hadith holds the curated saying dataset served alongside the daily
// verse.
package hadith

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dailydeen/dailydeen/internal/storage"
)

//go:embed data/hadith.json
var datasetJSON []byte

// Hadith is one saying with its Urdu text and Arabic original.
type Hadith struct {
	ID           int    `json:"id"`
	Text         string `json:"text"`
	Arabic       string `json:"arabic"`
	Source       string `json:"source"`
	Book         string `json:"book"`
	HadithNumber string `json:"hadithNumber"`
	Category     string `json:"category"`
	Narrator     string `json:"narrator"`
}

// Record converts h to its persisted form.
func (h Hadith) Record() storage.SayingRecord {
	return storage.SayingRecord{
		ID:           h.ID,
		Text:         h.Text,
		Arabic:       h.Arabic,
		Source:       h.Source,
		Book:         h.Book,
		HadithNumber: h.HadithNumber,
		Category:     h.Category,
		Narrator:     h.Narrator,
	}
}

// Category is a topic with its English and Urdu display names.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	NameUrdu string `json:"nameUrdu"`
}

var categoryNames = map[string][2]string{
	"prayer":    {"Prayer", "نماز"},
	"character": {"Character", "اخلاق"},
	"charity":   {"Charity", "صدقہ"},
	"family":    {"Family", "خاندان"},
	"ramadan":   {"Ramadan", "رمضان"},
}

// Corpus is an immutable, indexed set of sayings. Safe for concurrent use.
type Corpus struct {
	items []Hadith
	byID  map[int]int
}

// Load parses the embedded dataset.
func Load() (*Corpus, error) {
	return Parse(datasetJSON)
}

// Parse builds a Corpus from a JSON array. IDs must be unique and positive
// and every item needs text.
func Parse(data []byte) (*Corpus, error) {
	var items []Hadith
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding hadith dataset: %w", err)
	}
	c := &Corpus{items: items, byID: make(map[int]int, len(items))}
	for i, h := range items {
		if h.ID <= 0 {
			return nil, fmt.Errorf("hadith at index %d: invalid id %d", i, h.ID)
		}
		if strings.TrimSpace(h.Text) == "" {
			return nil, fmt.Errorf("hadith %d: empty text", h.ID)
		}
		if _, dup := c.byID[h.ID]; dup {
			return nil, fmt.Errorf("hadith %d: duplicate id", h.ID)
		}
		c.byID[h.ID] = i
	}
	return c, nil
}

// Count returns the number of sayings.
func (c *Corpus) Count() int { return len(c.items) }

// ByIndex returns the saying at position i.
func (c *Corpus) ByIndex(i int) (Hadith, bool) {
	if i < 0 || i >= len(c.items) {
		return Hadith{}, false
	}
	return c.items[i], true
}

// Saying returns the saying at position i in persisted form.
func (c *Corpus) Saying(i int) (storage.SayingRecord, error) {
	h, ok := c.ByIndex(i)
	if !ok {
		return storage.SayingRecord{}, fmt.Errorf("saying index %d: %w", i, storage.ErrNotFound)
	}
	return h.Record(), nil
}

// ByID looks up a saying by its id.
func (c *Corpus) ByID(id int) (Hadith, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Hadith{}, false
	}
	return c.items[i], true
}

// All returns every saying in dataset order.
func (c *Corpus) All() []Hadith {
	out := make([]Hadith, len(c.items))
	copy(out, c.items)
	return out
}

// ByCategory returns the sayings in category.
func (c *Corpus) ByCategory(category string) []Hadith {
	out := []Hadith{}
	for _, h := range c.items {
		if h.Category == category {
			out = append(out, h)
		}
	}
	return out
}

// Categories lists the categories present, in order of first appearance.
func (c *Corpus) Categories() []Category {
	seen := make(map[string]bool)
	out := []Category{}
	for _, h := range c.items {
		if seen[h.Category] {
			continue
		}
		seen[h.Category] = true
		cat := Category{ID: h.Category, Name: h.Category, NameUrdu: h.Category}
		if names, ok := categoryNames[h.Category]; ok {
			cat.Name, cat.NameUrdu = names[0], names[1]
		}
		out = append(out, cat)
	}
	return out
}

// Search matches query case-insensitively against text, source and category.
func (c *Corpus) Search(query string) []Hadith {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Hadith{}
	if q == "" {
		return out
	}
	for _, h := range c.items {
		if strings.Contains(strings.ToLower(h.Text), q) ||
			strings.Contains(strings.ToLower(h.Source), q) ||
			strings.Contains(strings.ToLower(h.Category), q) {
			out = append(out, h)
		}
	}
	return out
}

// ErrInvalidPage is returned for non-positive page or limit values.
var ErrInvalidPage = errors.New("page and limit must be positive")

// Page is one slice of a result list.
type Page struct {
	Hadith     []Hadith `json:"hadith"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}

// Paginate returns the page-th slice of limit items, 1-based.
func Paginate(items []Hadith, page, limit int) (Page, error) {
	if page < 1 || limit < 1 {
		return Page{}, ErrInvalidPage
	}
	start := (page - 1) * limit
	end := min(start+limit, len(items))
	p := Page{
		Hadith:     []Hadith{},
		Total:      len(items),
		Page:       page,
		TotalPages: (len(items) + limit - 1) / limit,
	}
	if start < len(items) {
		p.Hadith = items[start:end]
	}
	return p, nil
}
