//go:build integration
// +build integration

package narrative_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/datapulse/narrative/narrative"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "narrative_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=narrative_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_init.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func createWorkspace(t *testing.T, db *sql.DB, name string) string {
	var workspaceID string
	err := db.QueryRow(`
		INSERT INTO workspaces (name) VALUES ($1) RETURNING id
	`, name).Scan(&workspaceID)
	if err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}
	return workspaceID
}

func TestPostgresTemplateStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	workspaceID := createWorkspace(t, db, "test-workspace")
	store := narrative.NewPostgresTemplateStore(db, workspaceID)

	tplID := uuid.New().String()
	tpl := &narrative.NarrativeTemplate{
		ID:       tplID,
		Name:     "weekly-summary",
		Headline: "{{metrics.name}} weekly update",
		Body:     "Quality held at {{metrics.dataQualityScore|percent}}.",
		Variables: map[string]narrative.ConditionalValue{
			"tone": {
				Condition: "{{metrics.dataQualityScore}} >= 90",
				ThenValue: "excellent",
				ElseValue: &narrative.ConditionalValue{Literal: "acceptable"},
			},
		},
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := store.Add(tpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}

	retrieved, err := store.Get(tplID)
	if err != nil {
		t.Fatalf("Failed to get template: %v", err)
	}
	if retrieved.Name != "weekly-summary" {
		t.Errorf("Expected name 'weekly-summary', got '%s'", retrieved.Name)
	}
	if retrieved.Headline != tpl.Headline {
		t.Errorf("Expected headline '%s', got '%s'", tpl.Headline, retrieved.Headline)
	}

	// Conditional variables survive the JSONB round trip.
	tone, ok := retrieved.Variables["tone"]
	if !ok {
		t.Fatal("Variables lost in round trip")
	}
	if tone.Condition != "{{metrics.dataQualityScore}} >= 90" {
		t.Errorf("Expected condition to survive, got '%s'", tone.Condition)
	}
	if tone.ElseValue == nil || tone.ElseValue.Literal != "acceptable" {
		t.Errorf("Expected else branch to survive, got %+v", tone.ElseValue)
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list active templates: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active template, got %d", len(active))
	}

	tpl.Name = "weekly-summary-v2"
	tpl.Active = false
	if err := store.Update(tpl); err != nil {
		t.Fatalf("Failed to update template: %v", err)
	}

	updated, err := store.Get(tplID)
	if err != nil {
		t.Fatalf("Failed to get updated template: %v", err)
	}
	if updated.Name != "weekly-summary-v2" {
		t.Errorf("Expected name 'weekly-summary-v2', got '%s'", updated.Name)
	}
	if updated.Active {
		t.Error("Expected template to be inactive after update")
	}

	active, err = store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list active templates: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected 0 active templates, got %d", len(active))
	}

	if err := store.Delete(tplID); err != nil {
		t.Fatalf("Failed to delete template: %v", err)
	}
	if _, err := store.Get(tplID); err == nil {
		t.Error("Expected error when getting deleted template, got nil")
	}
}

func TestPostgresTemplateStore_WorkspaceIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	workspaceA := createWorkspace(t, db, "workspace-a")
	workspaceB := createWorkspace(t, db, "workspace-b")

	storeA := narrative.NewPostgresTemplateStore(db, workspaceA)
	storeB := narrative.NewPostgresTemplateStore(db, workspaceB)

	tplAID := uuid.New().String()
	tplA := &narrative.NarrativeTemplate{
		ID:        tplAID,
		Name:      "workspace-a-template",
		Headline:  "A",
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := storeA.Add(tplA); err != nil {
		t.Fatalf("Failed to add template for workspace A: %v", err)
	}

	tplBID := uuid.New().String()
	tplB := &narrative.NarrativeTemplate{
		ID:        tplBID,
		Name:      "workspace-b-template",
		Headline:  "B",
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := storeB.Add(tplB); err != nil {
		t.Fatalf("Failed to add template for workspace B: %v", err)
	}

	if _, err := storeA.Get(tplBID); err == nil {
		t.Error("Workspace A should not be able to see workspace B's template")
	}
	if _, err := storeB.Get(tplAID); err == nil {
		t.Error("Workspace B should not be able to see workspace A's template")
	}

	templatesA, err := storeA.ListActive()
	if err != nil {
		t.Fatalf("Failed to list templates for workspace A: %v", err)
	}
	if len(templatesA) != 1 || templatesA[0].Name != "workspace-a-template" {
		t.Errorf("Workspace A list = %+v", templatesA)
	}

	templatesB, err := storeB.ListActive()
	if err != nil {
		t.Fatalf("Failed to list templates for workspace B: %v", err)
	}
	if len(templatesB) != 1 || templatesB[0].Name != "workspace-b-template" {
		t.Errorf("Workspace B list = %+v", templatesB)
	}
}

func TestPostgresTemplateStore_DuplicateID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	workspaceID := createWorkspace(t, db, "test-workspace")
	store := narrative.NewPostgresTemplateStore(db, workspaceID)

	tpl := &narrative.NarrativeTemplate{
		ID:        uuid.New().String(),
		Name:      "dup-test",
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Add(tpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}
	if err := store.Add(tpl); err == nil {
		t.Error("Expected error when adding duplicate template, got nil")
	}
}

func TestPostgresTemplateStore_CascadingDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	workspaceID := createWorkspace(t, db, "test-workspace")
	store := narrative.NewPostgresTemplateStore(db, workspaceID)

	tpl := &narrative.NarrativeTemplate{
		ID:        uuid.New().String(),
		Name:      "cascade-test",
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Add(tpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}

	if _, err := db.Exec("DELETE FROM workspaces WHERE id = $1", workspaceID); err != nil {
		t.Fatalf("Failed to delete workspace: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM narrative_templates WHERE workspace_id = $1", workspaceID).Scan(&count); err != nil {
		t.Fatalf("Failed to count templates: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 templates after workspace deletion, got %d", count)
	}
}

func TestPostgresTemplateStore_RenderFromStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	workspaceID := createWorkspace(t, db, "test-workspace")
	store := narrative.NewPostgresTemplateStore(db, workspaceID)

	tpl := &narrative.NarrativeTemplate{
		ID:       uuid.New().String(),
		Name:     "render-test",
		Headline: "Run quality {{metrics.qualityRatio|percent}}",
		Body:     "Processed {{metrics.recordsProcessed|compact}} records.",
		Variables: map[string]narrative.ConditionalValue{
			"verdict": {
				Condition: "{{metrics.dataQualityScore}} >= 90",
				ThenValue: "clean",
				ElseValue: &narrative.ConditionalValue{Literal: "needs review"},
			},
		},
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Add(tpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}

	stored, err := store.Get(tpl.ID)
	if err != nil {
		t.Fatalf("Failed to get template: %v", err)
	}

	resolved := narrative.ProcessTemplate(stored.Template(), narrative.TemplateContext{
		"metrics": map[string]any{
			"dataQualityScore": 94.5,
			"qualityRatio":     0.945,
			"recordsProcessed": 12500,
		},
	})

	if resolved.Headline != "Run quality 94.5%" {
		t.Errorf("Headline = %q", resolved.Headline)
	}
	if resolved.Narrative != "Processed 12.5K records." {
		t.Errorf("Narrative = %q", resolved.Narrative)
	}
}
