package narrative

import (
	"testing"
	"time"
)

func newTestTemplate(id, name string, active bool) *NarrativeTemplate {
	return &NarrativeTemplate{
		ID:          id,
		WorkspaceID: "ws-1",
		Name:        name,
		Headline:    "{{metric.name}} update",
		Body:        "Value is {{metric.value|compact}}.",
		Active:      active,
	}
}

func TestInMemoryTemplateStoreCRUD(t *testing.T) {
	store := NewInMemoryTemplateStore()

	tpl := newTestTemplate("t1", "weekly", true)
	if err := store.Add(tpl); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if tpl.CreatedAt.IsZero() || tpl.UpdatedAt.IsZero() {
		t.Error("Add did not set timestamps")
	}

	if err := store.Add(newTestTemplate("t1", "dup", true)); err == nil {
		t.Error("Add with duplicate ID should fail")
	}

	got, err := store.Get("t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "weekly" {
		t.Errorf("Get returned name %q", got.Name)
	}

	if _, err := store.Get("missing"); err == nil {
		t.Error("Get of missing ID should fail")
	}

	created := got.CreatedAt
	time.Sleep(time.Millisecond)

	updated := newTestTemplate("t1", "weekly-v2", true)
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Error("Update did not preserve CreatedAt")
	}
	if !updated.UpdatedAt.After(created) {
		t.Error("Update did not advance UpdatedAt")
	}

	if err := store.Update(newTestTemplate("missing", "x", true)); err == nil {
		t.Error("Update of missing ID should fail")
	}

	if err := store.Delete("t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("t1"); err == nil {
		t.Error("Delete of missing ID should fail")
	}
}

func TestInMemoryTemplateStoreListActive(t *testing.T) {
	store := NewInMemoryTemplateStore()

	if err := store.Add(newTestTemplate("a", "active-one", true)); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(newTestTemplate("b", "inactive", false)); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(newTestTemplate("c", "active-two", true)); err != nil {
		t.Fatal(err)
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active templates, want 2", len(active))
	}
	for _, tpl := range active {
		if !tpl.Active {
			t.Errorf("inactive template %s in active list", tpl.ID)
		}
	}
}

func TestInMemoryTemplateCache(t *testing.T) {
	cache := NewInMemoryTemplateCache(DefaultCacheConfig())

	if cache.Get() != nil {
		t.Error("empty cache should return nil")
	}
	if cache.IsValid() {
		t.Error("empty cache should be invalid")
	}

	templates := []*NarrativeTemplate{newTestTemplate("t1", "one", true)}
	cache.Set(templates)

	if !cache.IsValid() {
		t.Error("cache invalid after Set")
	}
	got := cache.Get()
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("Get returned %+v", got)
	}

	// The returned slice is a copy.
	got[0] = nil
	if again := cache.Get(); again[0] == nil {
		t.Error("mutating the returned slice corrupted the cache")
	}

	cache.Invalidate()
	if cache.Get() != nil || cache.IsValid() {
		t.Error("cache still serving data after Invalidate")
	}
}

func TestInMemoryTemplateCacheTTL(t *testing.T) {
	cache := NewInMemoryTemplateCache(CacheConfig{TTL: 10 * time.Millisecond})
	cache.Set([]*NarrativeTemplate{newTestTemplate("t1", "one", true)})

	if cache.Get() == nil {
		t.Fatal("fresh entry should be served")
	}

	time.Sleep(20 * time.Millisecond)
	if cache.Get() != nil {
		t.Error("expired entry should not be served")
	}
	if cache.IsValid() {
		t.Error("expired cache reports valid")
	}
}
