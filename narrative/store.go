package narrative

import (
	"fmt"
	"sync"
	"time"
)

// TemplateStore manages persistence of authored narrative templates.
type TemplateStore interface {
	// Add a new template
	Add(tpl *NarrativeTemplate) error

	// Get a template by ID
	Get(id string) (*NarrativeTemplate, error)

	// List all active templates
	ListActive() ([]*NarrativeTemplate, error)

	// Update an existing template
	Update(tpl *NarrativeTemplate) error

	// Delete a template
	Delete(id string) error
}

// InMemoryTemplateStore implements TemplateStore with a map. Thread-safe.
type InMemoryTemplateStore struct {
	templates map[string]*NarrativeTemplate
	mu        sync.RWMutex
}

// NewInMemoryTemplateStore creates an empty in-memory template store.
func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{
		templates: make(map[string]*NarrativeTemplate),
	}
}

// Add stores a new template, setting both timestamps. IDs are unique.
func (s *InMemoryTemplateStore) Add(tpl *NarrativeTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[tpl.ID]; exists {
		return fmt.Errorf("template with ID %s already exists", tpl.ID)
	}

	now := time.Now()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	s.templates[tpl.ID] = tpl
	return nil
}

// Get retrieves a template by ID.
func (s *InMemoryTemplateStore) Get(id string) (*NarrativeTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, exists := s.templates[id]
	if !exists {
		return nil, fmt.Errorf("template with ID %s not found", id)
	}
	return tpl, nil
}

// ListActive returns all active templates.
func (s *InMemoryTemplateStore) ListActive() ([]*NarrativeTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*NarrativeTemplate
	for _, tpl := range s.templates {
		if tpl.Active {
			active = append(active, tpl)
		}
	}
	return active, nil
}

// Update replaces an existing template, preserving CreatedAt.
func (s *InMemoryTemplateStore) Update(tpl *NarrativeTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[tpl.ID]
	if !exists {
		return fmt.Errorf("template with ID %s not found", tpl.ID)
	}

	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatedAt = time.Now()
	s.templates[tpl.ID] = tpl
	return nil
}

// Delete removes a template.
func (s *InMemoryTemplateStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[id]; !exists {
		return fmt.Errorf("template with ID %s not found", id)
	}

	delete(s.templates, id)
	return nil
}
