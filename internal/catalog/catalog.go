// Package catalog loads the searchable resource catalog: which tables the
// search API exposes and which columns of each may be filtered, sorted or
// faceted.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/abrahamahn/abe-stack-sub003/search/models"
)

// Resource is one searchable table exposed under Name.
type Resource struct {
	Name               string `yaml:"name"`
	models.TableConfig `yaml:",inline"`
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Tables []Resource `yaml:"tables"`
}

var resourceName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Load reads and parses a catalog YAML file.
// Unknown fields are rejected so typos such as "primarykey:" fail loudly.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

// Validate checks resource names and every table definition.
func (c *Catalog) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("tables list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(c.Tables))
	for i := range c.Tables {
		r := &c.Tables[i]
		if !resourceName.MatchString(r.Name) {
			return fmt.Errorf("tables[%d]: invalid resource name %q", i, r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("tables[%d]: duplicate resource name %q", i, r.Name)
		}
		seen[r.Name] = true

		if r.Table == "" {
			r.Table = r.Name
		}
		if r.PrimaryKey == "" {
			r.PrimaryKey = "id"
		}
		for j := range r.Columns {
			if r.Columns[j].Column == "" {
				r.Columns[j].Column = r.Columns[j].Field
			}
		}
		if err := r.TableConfig.Validate(); err != nil {
			return fmt.Errorf("tables[%d] (%s): %w", i, r.Name, err)
		}
	}
	return nil
}

// Lookup returns the resource registered under name.
func (c *Catalog) Lookup(name string) (Resource, bool) {
	for _, r := range c.Tables {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Names returns the resource names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Tables))
	for i, r := range c.Tables {
		names[i] = r.Name
	}
	sort.Strings(names)
	return names
}
