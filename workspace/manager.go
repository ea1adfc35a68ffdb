// Package workspace wires per-workspace state together: the metric
// schema, the compiled insight-rule engine, and the template store/cache
// pair the render path reads from.
package workspace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/datapulse/narrative/insightrules"
	"github.com/datapulse/narrative/narrative"
)

// Workspace bundles one workspace's engines and stores.
type Workspace struct {
	ID        string
	Schema    insightrules.MetricSchema
	Rules     *insightrules.Engine
	Templates narrative.TemplateStore
	Cache     narrative.TemplateCache
}

// Manager holds all loaded workspaces.
type Manager struct {
	workspaces map[string]*Workspace
	db         *sql.DB
	mu         sync.RWMutex
}

// NewManager creates an empty workspace manager.
func NewManager(db *sql.DB) *Manager {
	return &Manager{
		workspaces: make(map[string]*Workspace),
		db:         db,
	}
}

// envFromSchema builds a CEL environment declaring one dynamic variable
// per top-level schema object.
func envFromSchema(schema insightrules.MetricSchema) (*cel.Env, error) {
	var opts []cel.EnvOption
	for objectName := range schema {
		opts = append(opts, cel.Variable(objectName, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// LoadAll loads every workspace from the database and initializes its
// engine and stores.
func (m *Manager) LoadAll() error {
	rows, err := m.db.Query(`
		SELECT id, schema
		FROM workspaces
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch workspaces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var schemaJSON []byte
		if err := rows.Scan(&id, &schemaJSON); err != nil {
			return fmt.Errorf("failed to scan workspace row: %w", err)
		}

		var schema insightrules.MetricSchema
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return fmt.Errorf("invalid schema for workspace %s: %w", id, err)
		}

		if err := m.Create(id, schema); err != nil {
			return fmt.Errorf("failed to initialize workspace %s: %w", id, err)
		}
	}

	return rows.Err()
}

// Create initializes a workspace with the given metric schema.
func (m *Manager) Create(id string, schema insightrules.MetricSchema) error {
	if err := insightrules.ValidateSchema(schema); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	env, err := envFromSchema(schema)
	if err != nil {
		return err
	}

	ruleStore := insightrules.NewPostgresRuleStore(m.db, id)
	engine, err := insightrules.NewEngineWithEnv(env, ruleStore)
	if err != nil {
		return fmt.Errorf("failed to create rules engine: %w", err)
	}

	m.mu.Lock()
	m.workspaces[id] = &Workspace{
		ID:        id,
		Schema:    schema,
		Rules:     engine,
		Templates: narrative.NewPostgresTemplateStore(m.db, id),
		Cache:     narrative.NewInMemoryTemplateCache(narrative.DefaultCacheConfig()),
	}
	m.mu.Unlock()

	return nil
}

// Get retrieves a loaded workspace.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, exists := m.workspaces[id]
	if !exists {
		return nil, fmt.Errorf("workspace %s not found", id)
	}
	return ws, nil
}

// UpdateSchema replaces a workspace's metric schema, rebuilding the rule
// engine against the new environment and atomically swapping it in.
// Requests in flight keep the old engine until the swap completes.
func (m *Manager) UpdateSchema(id string, newSchema insightrules.MetricSchema) error {
	if err := insightrules.ValidateSchema(newSchema); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	m.mu.RLock()
	existing, exists := m.workspaces[id]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("workspace %s not found", id)
	}

	schemaJSON, err := json.Marshal(newSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	_, err = m.db.Exec(`
		UPDATE workspaces
		SET schema = $1, updated_at = NOW()
		WHERE id = $2
	`, schemaJSON, id)
	if err != nil {
		return fmt.Errorf("failed to save new schema: %w", err)
	}

	env, err := envFromSchema(newSchema)
	if err != nil {
		return err
	}

	ruleStore := insightrules.NewPostgresRuleStore(m.db, id)
	newEngine, err := insightrules.NewEngineWithEnv(env, ruleStore)
	if err != nil {
		return fmt.Errorf("failed to rebuild rules engine: %w", err)
	}

	m.mu.Lock()
	m.workspaces[id] = &Workspace{
		ID:        id,
		Schema:    newSchema,
		Rules:     newEngine,
		Templates: existing.Templates,
		Cache:     existing.Cache,
	}
	m.mu.Unlock()

	return nil
}

// List returns all loaded workspace IDs.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		ids = append(ids, id)
	}
	return ids
}

// Remove drops a workspace from the manager. The database rows remain.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workspaces[id]; !exists {
		return fmt.Errorf("workspace %s not found", id)
	}

	delete(m.workspaces, id)
	return nil
}
