package insightrules

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL, scoped to a
// workspace.
type PostgresRuleStore struct {
	db          *sql.DB
	workspaceID string
}

// NewPostgresRuleStore creates a workspace-scoped rule store.
func NewPostgresRuleStore(db *sql.DB, workspaceID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:          db,
		workspaceID: workspaceID,
	}
}

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM insight_rules WHERE id = $1 AND workspace_id = $2)
	`, rule.ID, s.workspaceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	_, err = s.db.Exec(`
		INSERT INTO insight_rules (id, workspace_id, name, expression, message, impact, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rule.ID, s.workspaceID, rule.Name, rule.Expression, rule.Message, rule.Impact,
		rule.Active, rule.CreatedAt, rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	var rule Rule
	err := s.db.QueryRow(`
		SELECT id, name, expression, message, impact, active, created_at, updated_at
		FROM insight_rules
		WHERE id = $1 AND workspace_id = $2
	`, id, s.workspaceID).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Expression,
		&rule.Message,
		&rule.Impact,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return &rule, nil
}

// ListActive returns all active rules for the workspace.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, expression, message, impact, active, created_at, updated_at
		FROM insight_rules
		WHERE workspace_id = $1 AND active = true
		ORDER BY created_at ASC
	`, s.workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Expression, &r.Message, &r.Impact,
			&r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	if _, err := s.Get(rule.ID); err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE insight_rules
		SET name = $1, expression = $2, message = $3, impact = $4, active = $5, updated_at = $6
		WHERE id = $7 AND workspace_id = $8
	`, rule.Name, rule.Expression, rule.Message, rule.Impact, rule.Active,
		rule.UpdatedAt, rule.ID, s.workspaceID)

	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM insight_rules
		WHERE id = $1 AND workspace_id = $2
	`, id, s.workspaceID)

	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s not found", id)
	}

	return nil
}
