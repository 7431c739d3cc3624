// Package router classifies incoming requests as read-only queries or
// mutating executions and dispatches them to the matching path. The read
// path is never handed a write-capable store or the checkpoint manager,
// so it cannot mutate task or session state by construction.
package router

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the classification of a request.
type Kind int

const (
	// KindUnknown is the zero value; classification failed.
	KindUnknown Kind = iota
	// KindQuery marks a read-only request.
	KindQuery
	// KindMutating marks a request that may change task or session state.
	KindMutating
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

// Request is an incoming operation request.
type Request struct {
	// Op is the declared operation kind (e.g. "status", "execute").
	Op string
	// TaskID is the target task, if the operation names one.
	TaskID string
	// ProjectID is the owning project, if known.
	ProjectID string
	// Query carries query parameters for read-only requests.
	Query *QueryDescriptor
}

// QueryDescriptor describes what to query. The router only passes it
// through; it never executes a query itself.
type QueryDescriptor struct {
	// QueryType is the kind of query (e.g. "list", "detail").
	QueryType string `json:"query_type"`
	// EntityType is the target entity kind (e.g. "task", "session").
	EntityType string `json:"entity_type"`
	// Filters are field/value constraints on the result set.
	Filters map[string]string `json:"filters,omitempty"`
	// ProjectID scopes the query to a project.
	ProjectID string `json:"project_id,omitempty"`
	// SortOrder names the field and direction to sort by.
	SortOrder string `json:"sort_order,omitempty"`
}

// queryOps and mutatingOps define the classification table. An operation
// missing from both tables is ambiguous, not mutating: the router refuses
// to guess.
var (
	queryOps = map[string]bool{
		"status": true,
		"list":   true,
		"show":   true,
		"query":  true,
	}
	mutatingOps = map[string]bool{
		"execute": true,
		"run":     true,
		"resume":  true,
		"cancel":  true,
	}
)

// Classify determines whether a request is read-only or mutating.
// It is a pure function over the request shape.
func Classify(req Request) (Kind, error) {
	op := strings.ToLower(strings.TrimSpace(req.Op))
	if op == "" {
		return KindUnknown, &AmbiguousIntentError{Op: req.Op, Reason: "request declares no operation kind"}
	}
	if queryOps[op] {
		return KindQuery, nil
	}
	if mutatingOps[op] {
		return KindMutating, nil
	}
	return KindUnknown, &AmbiguousIntentError{Op: req.Op, Reason: "unrecognized operation"}
}

// QueryContextBuilder is the read-only collaborator that turns a query
// descriptor into query metadata. It never executes a query and it never
// receives a handle to the state store's write operations.
type QueryContextBuilder interface {
	BuildQueryContext(ctx context.Context, d QueryDescriptor) (*QueryContext, error)
}

// QueryContext is the metadata a query collaborator returns: a
// description of what to query, not the query result.
type QueryContext struct {
	// QueryType echoes the requested query kind.
	QueryType string `json:"query_type"`
	// EntityType echoes the target entity kind.
	EntityType string `json:"entity_type"`
	// Filters are the normalized filter constraints.
	Filters map[string]string `json:"filters,omitempty"`
	// ProjectID scopes the query to a project.
	ProjectID string `json:"project_id,omitempty"`
	// SortOrder is the normalized sort specification.
	SortOrder string `json:"sort_order,omitempty"`
}

// MutatingHandler is the write path: the decision engine's entry point.
type MutatingHandler interface {
	HandleMutating(ctx context.Context, req Request) error
}

// Router dispatches classified requests. The query builder and the
// mutating handler are deliberately separate fields with separate
// capabilities; neither can reach the other's path.
type Router struct {
	queries  QueryContextBuilder
	mutating MutatingHandler
}

// New creates a router over the given collaborators.
func New(queries QueryContextBuilder, mutating MutatingHandler) *Router {
	return &Router{queries: queries, mutating: mutating}
}

// Dispatch classifies the request and forwards it to the matching path.
// For query requests the returned QueryContext is non-nil; for mutating
// requests it is nil.
func (r *Router) Dispatch(ctx context.Context, req Request) (*QueryContext, error) {
	kind, err := Classify(req)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindQuery:
		return r.dispatchQuery(ctx, req)
	case KindMutating:
		return nil, r.dispatchMutating(ctx, req)
	default:
		return nil, &AmbiguousIntentError{Op: req.Op, Reason: "unclassifiable request"}
	}
}

// dispatchQuery forwards a query request to the read-only collaborator.
func (r *Router) dispatchQuery(ctx context.Context, req Request) (*QueryContext, error) {
	if r.queries == nil {
		return nil, fmt.Errorf("no query collaborator configured")
	}

	d := QueryDescriptor{QueryType: "detail", EntityType: "task", ProjectID: req.ProjectID}
	if req.Query != nil {
		d = *req.Query
	}
	if req.TaskID != "" {
		if d.Filters == nil {
			d.Filters = make(map[string]string)
		}
		d.Filters["id"] = req.TaskID
	}

	return r.queries.BuildQueryContext(ctx, d)
}

// dispatchMutating forwards a mutating request to the decision engine path.
// A mutating request arriving without a configured write path is an
// invariant violation, not a fallback to the read path.
func (r *Router) dispatchMutating(ctx context.Context, req Request) error {
	if r.mutating == nil {
		return &ClassificationViolationError{
			Op:     req.Op,
			Wanted: KindMutating,
			Detail: "mutating request with no write path configured",
		}
	}
	return r.mutating.HandleMutating(ctx, req)
}

// GuardQuery verifies that a request reaching the read path really is a
// query. It fails loudly on a misrouted mutating request instead of
// silently downgrading it.
func GuardQuery(req Request) error {
	kind, err := Classify(req)
	if err != nil {
		return err
	}
	if kind != KindQuery {
		return &ClassificationViolationError{Op: req.Op, Wanted: KindQuery, Detail: "mutating request reached the read-only path"}
	}
	return nil
}
