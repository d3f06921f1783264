package catalog

import (
	"strings"
)

// Field describes a dimension or measure exposed by an explore
type Field struct {
	Name        string   `json:"name"`
	Label       string   `json:"label,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Catalog is the read-only set of fields available for one explore
type Catalog struct {
	Dimensions []Field `json:"dimensions"`
	Measures   []Field `json:"measures"`
}

// Contains reports whether name is a dimension or measure of the catalog
func (c *Catalog) Contains(name string) bool {
	if c == nil {
		return false
	}

	for _, f := range c.Dimensions {
		if f.Name == name {
			return true
		}
	}

	for _, f := range c.Measures {
		if f.Name == name {
			return true
		}
	}

	return false
}

// Names returns dimension names followed by measure names
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}

	names := make([]string, 0, len(c.Dimensions)+len(c.Measures))
	for _, f := range c.Dimensions {
		names = append(names, f.Name)
	}
	for _, f := range c.Measures {
		names = append(names, f.Name)
	}

	return names
}

// Len returns the total number of fields
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Dimensions) + len(c.Measures)
}

// FormatField renders a field as a single prompt line, skipping empty parts
func FormatField(f Field) string {
	var parts []string

	if f.Name != "" {
		parts = append(parts, "name: "+f.Name)
	}
	if f.Type != "" {
		parts = append(parts, "type: "+f.Type)
	}
	if f.Description != "" {
		parts = append(parts, "description: "+f.Description)
	}
	if len(f.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(f.Tags, ","))
	}

	return strings.Join(parts, ", ")
}
