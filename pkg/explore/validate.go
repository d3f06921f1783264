package explore

import (
	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
)

// UnknownFields returns the fields that are not members of the catalog, in order
func UnknownFields(q QueryParams, c *catalog.Catalog) []string {
	var unknown []string
	for _, f := range q.Fields {
		if !c.Contains(f) {
			unknown = append(unknown, f)
		}
	}
	return unknown
}

// Validate reports whether every field of q is in the catalog.
// An empty field list is vacuously valid.
func Validate(q QueryParams, c *catalog.Catalog) bool {
	return len(UnknownFields(q, c)) == 0
}
