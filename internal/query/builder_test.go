package query

import (
	"context"
	"testing"

	"github.com/ShayCichocki/baton/internal/router"
)

func TestBuildQueryContextDefaults(t *testing.T) {
	b := NewBuilder()

	qc, err := b.BuildQueryContext(context.Background(), router.QueryDescriptor{})
	if err != nil {
		t.Fatalf("BuildQueryContext failed: %v", err)
	}
	if qc.QueryType != "list" {
		t.Errorf("QueryType = %q, want list", qc.QueryType)
	}
	if qc.EntityType != "task" {
		t.Errorf("EntityType = %q, want task", qc.EntityType)
	}
	if qc.SortOrder != "created_at:desc" {
		t.Errorf("SortOrder = %q, want created_at:desc", qc.SortOrder)
	}
}

func TestBuildQueryContextNormalizes(t *testing.T) {
	b := NewBuilder()

	qc, err := b.BuildQueryContext(context.Background(), router.QueryDescriptor{
		QueryType:  " Detail ",
		EntityType: "Session",
		Filters:    map[string]string{" Status ": " active "},
		SortOrder:  "started_at",
	})
	if err != nil {
		t.Fatalf("BuildQueryContext failed: %v", err)
	}
	if qc.QueryType != "detail" || qc.EntityType != "session" {
		t.Errorf("Normalization failed: %+v", qc)
	}
	if qc.Filters["status"] != "active" {
		t.Errorf("Filter not normalized: %+v", qc.Filters)
	}
	if qc.SortOrder != "started_at:asc" {
		t.Errorf("SortOrder = %q, want started_at:asc", qc.SortOrder)
	}
}

func TestBuildQueryContextRejectsUnknownEntity(t *testing.T) {
	b := NewBuilder()

	if _, err := b.BuildQueryContext(context.Background(), router.QueryDescriptor{EntityType: "widget"}); err == nil {
		t.Error("Expected error for unknown entity type")
	}
	if _, err := b.BuildQueryContext(context.Background(), router.QueryDescriptor{QueryType: "drop"}); err == nil {
		t.Error("Expected error for unknown query type")
	}
}

func TestFilterKeysSorted(t *testing.T) {
	qc := &router.QueryContext{Filters: map[string]string{"z": "1", "a": "2", "m": "3"}}
	keys := FilterKeys(qc)
	want := []string{"a", "m", "z"}
	if len(keys) != len(want) {
		t.Fatalf("FilterKeys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("FilterKeys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}
