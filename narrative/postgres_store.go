package narrative

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresTemplateStore implements TemplateStore backed by PostgreSQL,
// scoped to a single workspace. Conditional-variable definitions are
// stored as a JSONB column.
type PostgresTemplateStore struct {
	db          *sql.DB
	workspaceID string
}

// NewPostgresTemplateStore creates a workspace-scoped template store.
func NewPostgresTemplateStore(db *sql.DB, workspaceID string) *PostgresTemplateStore {
	return &PostgresTemplateStore{
		db:          db,
		workspaceID: workspaceID,
	}
}

// Add inserts a new template.
func (s *PostgresTemplateStore) Add(tpl *NarrativeTemplate) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM narrative_templates WHERE id = $1 AND workspace_id = $2)
	`, tpl.ID, s.workspaceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check template existence: %w", err)
	}
	if exists {
		return fmt.Errorf("template with ID %s already exists", tpl.ID)
	}

	varsJSON, err := json.Marshal(tpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO narrative_templates (id, workspace_id, name, headline, body, variables, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tpl.ID, s.workspaceID, tpl.Name, tpl.Headline, tpl.Body, varsJSON, tpl.Active,
		tpl.CreatedAt, tpl.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	return nil
}

// Get retrieves a template by ID.
func (s *PostgresTemplateStore) Get(id string) (*NarrativeTemplate, error) {
	var tpl NarrativeTemplate
	var varsJSON []byte
	err := s.db.QueryRow(`
		SELECT id, workspace_id, name, headline, body, variables, active, created_at, updated_at
		FROM narrative_templates
		WHERE id = $1 AND workspace_id = $2
	`, id, s.workspaceID).Scan(
		&tpl.ID,
		&tpl.WorkspaceID,
		&tpl.Name,
		&tpl.Headline,
		&tpl.Body,
		&varsJSON,
		&tpl.Active,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &tpl.Variables); err != nil {
			return nil, fmt.Errorf("corrupt variables for template %s: %w", id, err)
		}
	}

	return &tpl, nil
}

// ListActive returns all active templates for the workspace.
func (s *PostgresTemplateStore) ListActive() ([]*NarrativeTemplate, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, name, headline, body, variables, active, created_at, updated_at
		FROM narrative_templates
		WHERE workspace_id = $1 AND active = true
		ORDER BY created_at ASC
	`, s.workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active templates: %w", err)
	}
	defer rows.Close()

	var templates []*NarrativeTemplate
	for rows.Next() {
		var tpl NarrativeTemplate
		var varsJSON []byte
		if err := rows.Scan(&tpl.ID, &tpl.WorkspaceID, &tpl.Name, &tpl.Headline, &tpl.Body,
			&varsJSON, &tpl.Active, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if len(varsJSON) > 0 {
			if err := json.Unmarshal(varsJSON, &tpl.Variables); err != nil {
				return nil, fmt.Errorf("corrupt variables for template %s: %w", tpl.ID, err)
			}
		}
		templates = append(templates, &tpl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Update modifies an existing template.
func (s *PostgresTemplateStore) Update(tpl *NarrativeTemplate) error {
	if _, err := s.Get(tpl.ID); err != nil {
		return err
	}

	varsJSON, err := json.Marshal(tpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	tpl.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE narrative_templates
		SET name = $1, headline = $2, body = $3, variables = $4, active = $5, updated_at = $6
		WHERE id = $7 AND workspace_id = $8
	`, tpl.Name, tpl.Headline, tpl.Body, varsJSON, tpl.Active, tpl.UpdatedAt, tpl.ID, s.workspaceID)

	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("template %s not found", tpl.ID)
	}

	return nil
}

// Delete removes a template.
func (s *PostgresTemplateStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM narrative_templates
		WHERE id = $1 AND workspace_id = $2
	`, id, s.workspaceID)

	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("template %s not found", id)
	}

	return nil
}
