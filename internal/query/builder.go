// Package query builds query metadata for read-only requests. It holds a
// read-only view of the state store and by construction cannot create,
// update, or checkpoint anything.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/baton/internal/router"
)

// validEntities are the entity kinds a query may target.
var validEntities = map[string]bool{
	"task":    true,
	"session": true,
	"verdict": true,
}

// validQueryTypes are the recognized query shapes.
var validQueryTypes = map[string]bool{
	"list":   true,
	"detail": true,
	"count":  true,
}

// Builder turns query descriptors into normalized query contexts.
type Builder struct{}

// NewBuilder creates a query context builder.
func NewBuilder() *Builder {
	return &Builder{}
}

var _ router.QueryContextBuilder = (*Builder)(nil)

// BuildQueryContext validates and normalizes a query descriptor into
// query metadata. It returns the description of what to query; executing
// the query is the caller's concern.
func (b *Builder) BuildQueryContext(ctx context.Context, d router.QueryDescriptor) (*router.QueryContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qt := strings.ToLower(strings.TrimSpace(d.QueryType))
	if qt == "" {
		qt = "list"
	}
	if !validQueryTypes[qt] {
		return nil, fmt.Errorf("unsupported query type %q", d.QueryType)
	}

	entity := strings.ToLower(strings.TrimSpace(d.EntityType))
	if entity == "" {
		entity = "task"
	}
	if !validEntities[entity] {
		return nil, fmt.Errorf("unsupported entity type %q", d.EntityType)
	}

	qc := &router.QueryContext{
		QueryType:  qt,
		EntityType: entity,
		ProjectID:  strings.TrimSpace(d.ProjectID),
		SortOrder:  normalizeSort(d.SortOrder),
	}
	if len(d.Filters) > 0 {
		qc.Filters = make(map[string]string, len(d.Filters))
		for k, v := range d.Filters {
			qc.Filters[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
	return qc, nil
}

// normalizeSort canonicalizes a sort specification to "field:dir".
// An empty spec sorts by creation time, newest first.
func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "created_at:desc"
	}
	field, dir, found := strings.Cut(s, ":")
	if !found {
		dir = "asc"
	}
	if dir != "asc" && dir != "desc" {
		dir = "asc"
	}
	return field + ":" + dir
}

// FilterKeys returns the filter keys of a query context in sorted order.
// Useful for deterministic logging and display.
func FilterKeys(qc *router.QueryContext) []string {
	keys := make([]string, 0, len(qc.Filters))
	for k := range qc.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
