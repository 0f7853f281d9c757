package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Dataset describes one model-ready series file registered in the catalog.
type Dataset struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	Task         string    `json:"task"`
	Rows         int       `json:"rows"`
	Features     int       `json:"features"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Catalog is the on-disk index of datasets produced by make-dataset.
type Catalog struct {
	UpdatedAt string    `json:"updated_at"` // ISO 8601 timestamp
	Datasets  []Dataset `json:"datasets"`
}

// LoadCatalog loads the catalog from a JSON file.
func LoadCatalog(filePath string) (*Catalog, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	return &c, nil
}

// SaveCatalog writes the catalog, creating its directory when needed.
func SaveCatalog(c *Catalog, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := os.WriteFile(filePath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}

	return nil
}

// Upsert replaces the dataset with the same ID or appends it, keeping the
// list sorted by ID.
func (c *Catalog) Upsert(d Dataset) {
	replaced := false
	for i := range c.Datasets {
		if c.Datasets[i].ID == d.ID {
			c.Datasets[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		c.Datasets = append(c.Datasets, d)
	}
	sort.Slice(c.Datasets, func(i, j int) bool { return c.Datasets[i].ID < c.Datasets[j].ID })
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Find returns the dataset with the given ID.
func (c *Catalog) Find(id string) (Dataset, bool) {
	for _, d := range c.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

// GetDefaultCatalogPath returns the default path for the catalog file
func GetDefaultCatalogPath() string {
	if path := os.Getenv("DATASETS_FILE"); path != "" {
		return path
	}
	return "./data/datasets.json"
}
