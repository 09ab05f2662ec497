// pkg/catalog/catalog.go
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"workflow-engine/internal/models"
)

// Catalog is the on-disk form of a set of workflow definitions.
type Catalog struct {
	Version     string                      `json:"version"`
	LastUpdated string                      `json:"lastUpdated"`
	Workflows   []models.WorkflowDefinition `json:"workflows"`
}

// New returns an empty catalog stamped with the current time.
func New(version string) *Catalog {
	return &Catalog{
		Version:     version,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Workflows:   []models.WorkflowDefinition{},
	}
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Save writes the catalog sorted by id with a refreshed LastUpdated stamp.
func Save(cat *Catalog, path string) error {
	sort.Slice(cat.Workflows, func(i, j int) bool { return cat.Workflows[i].ID < cat.Workflows[j].ID })
	cat.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Find returns the definition with the given id.
func (c *Catalog) Find(id string) (models.WorkflowDefinition, bool) {
	for _, w := range c.Workflows {
		if w.ID == id {
			return w, true
		}
	}
	return models.WorkflowDefinition{}, false
}

// Add appends def unless its id is already present.
func (c *Catalog) Add(def models.WorkflowDefinition) error {
	if _, exists := c.Find(def.ID); exists {
		return fmt.Errorf("workflow with ID %s already exists", def.ID)
	}
	c.Workflows = append(c.Workflows, def)
	return nil
}
