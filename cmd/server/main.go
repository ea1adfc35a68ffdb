package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/datapulse/narrative/insightrules"
	"github.com/datapulse/narrative/internal/logger"
	"github.com/datapulse/narrative/narrative"
	"github.com/datapulse/narrative/workspace"
)

type Server struct {
	db      *sql.DB
	manager *workspace.Manager
	router  *chi.Mux
}

func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewServerWithDB(db)
}

// NewServerWithDB builds a server on an already-open connection.
func NewServerWithDB(db *sql.DB) (*Server, error) {
	manager := workspace.NewManager(db)

	logger.Info("loading workspaces from database")
	if err := manager.LoadAll(); err != nil {
		return nil, fmt.Errorf("failed to load workspaces: %w", err)
	}
	logger.Info("workspaces loaded", "count", len(manager.List()))

	s := &Server{
		db:      db,
		manager: manager,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	// Engine operations
	r.Post("/api/v1/render", s.handleRender)
	r.Post("/api/v1/synthesize", s.handleSynthesize)
	r.Post("/api/v1/segments", s.handleExtractSegments)

	// Workspace management
	r.Route("/api/v1/workspaces", func(r chi.Router) {
		r.Get("/", s.handleListWorkspaces)
		r.Post("/", s.handleCreateWorkspace)

		r.Route("/{workspaceId}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteWorkspace)

			r.Get("/schema", s.handleGetSchema)
			r.Post("/schema", s.handleUpdateSchema)

			r.Post("/templates", s.handleCreateTemplate)
			r.Get("/templates", s.handleListTemplates)
			r.Get("/templates/{templateId}", s.handleGetTemplate)
			r.Put("/templates/{templateId}", s.handleUpdateTemplate)
			r.Delete("/templates/{templateId}", s.handleDeleteTemplate)

			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
			r.Put("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"workspacesLoaded": len(s.manager.List()),
	})
}

// handleRender resolves a stored or inline template against a context.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var tpl narrative.Template
	switch {
	case req.Template != nil:
		tpl = *req.Template
	case req.TemplateID != "":
		if req.WorkspaceID == "" {
			respondError(w, http.StatusBadRequest, "workspaceId is required with templateId", nil)
			return
		}
		ws, err := s.manager.Get(req.WorkspaceID)
		if err != nil {
			respondError(w, http.StatusNotFound, "workspace not found", err)
			return
		}
		stored, err := ws.Templates.Get(req.TemplateID)
		if err != nil {
			respondError(w, http.StatusNotFound, "template not found", err)
			return
		}
		tpl = stored.Template()
	default:
		respondError(w, http.StatusBadRequest, "template or templateId is required", nil)
		return
	}

	resolved := narrative.ProcessTemplate(tpl, narrative.TemplateContext(req.Context))
	respondJSON(w, http.StatusOK, resolved)
}

// handleSynthesize runs the built-in synthesis and, when a workspace is
// named, its custom rules.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result := narrative.Synthesize(req.Narrative, req.Metrics, req.Anomalies)

	resp := SynthesizeResponse{Result: result}

	// Custom rules are skipped for suppressed runs for the same reason
	// the built-in table is: no confident output on a blocked run.
	if req.WorkspaceID != "" && !result.Suppressed {
		ws, err := s.manager.Get(req.WorkspaceID)
		if err != nil {
			respondError(w, http.StatusNotFound, "workspace not found", err)
			return
		}

		facts := map[string]any{
			"Metrics": map[string]any{
				"dataQualityScore": req.Metrics.DataQualityScore,
				"confidence":       req.Metrics.Confidence,
				"anomalyCount":     req.Metrics.AnomalyCount,
				"recordsProcessed": req.Metrics.RecordsProcessed,
				"modelFit":         req.Metrics.ModelFit,
			},
		}

		hits, err := ws.Rules.EvaluateAll(facts)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "rule evaluation failed", err)
			return
		}

		for _, hit := range hits {
			hr := RuleHitResponse{
				RuleID:   hit.RuleID,
				RuleName: hit.RuleName,
				Matched:  hit.Matched,
				Message:  hit.Message,
				Impact:   hit.Impact,
			}
			if hit.Error != nil {
				hr.Error = hit.Error.Error()
			}
			resp.RuleHits = append(resp.RuleHits, hr)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExtractSegments(w http.ResponseWriter, r *http.Request) {
	var req ExtractSegmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Document == "" {
		respondError(w, http.StatusBadRequest, "document is required", nil)
		return
	}

	segments := narrative.ExtractSegments(req.Document)
	respondJSON(w, http.StatusOK, map[string]any{
		"segments": segments,
	})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query("SELECT id, name, created_at, updated_at FROM workspaces ORDER BY created_at DESC")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list workspaces", err)
		return
	}
	defer rows.Close()

	type ws struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	workspaces := []ws{}
	for rows.Next() {
		var item ws
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt, &item.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan workspace", err)
			return
		}
		workspaces = append(workspaces, item)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"workspaces": workspaces,
	})
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if err := insightrules.ValidateSchema(req.Schema); err != nil {
		respondError(w, http.StatusBadRequest, "invalid schema", err)
		return
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to marshal schema", err)
		return
	}

	var workspaceID string
	err = s.db.QueryRow(`
		INSERT INTO workspaces (name, schema, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id
	`, req.Name, schemaJSON).Scan(&workspaceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create workspace", err)
		return
	}

	if err := s.manager.Create(workspaceID, req.Schema); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize workspace", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   workspaceID,
		"name": req.Name,
	})
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	if err := s.manager.Remove(workspaceID); err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	// Templates and rules go with it via ON DELETE CASCADE.
	if _, err := s.db.Exec(`DELETE FROM workspaces WHERE id = $1`, workspaceID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete workspace", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "deleted",
	})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"schema": ws.Schema,
	})
}

func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	var req UpdateSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.manager.UpdateSchema(workspaceID, req.Schema); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update schema", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "active",
	})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	// Malformed conditional chains are rejected here rather than failing
	// closed on every render.
	for varName, def := range req.Variables {
		if err := narrative.ValidateConditional(def); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid variable %q", varName), err)
			return
		}
	}

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	now := time.Now()
	tpl := &narrative.NarrativeTemplate{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Headline:    req.Headline,
		Body:        req.Body,
		Variables:   req.Variables,
		Active:      req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := ws.Templates.Add(tpl); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add template", err)
		return
	}
	ws.Cache.Invalidate()

	respondJSON(w, http.StatusCreated, tpl)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	templates := ws.Cache.Get()
	if templates == nil {
		templates, err = ws.Templates.ListActive()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list templates", err)
			return
		}
		ws.Cache.Set(templates)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	templateID := chi.URLParam(r, "templateId")

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	tpl, err := ws.Templates.Get(templateID)
	if err != nil {
		respondError(w, http.StatusNotFound, "template not found", err)
		return
	}

	respondJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	templateID := chi.URLParam(r, "templateId")

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	for varName, def := range req.Variables {
		if err := narrative.ValidateConditional(def); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid variable %q", varName), err)
			return
		}
	}

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	tpl := &narrative.NarrativeTemplate{
		ID:          templateID,
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Headline:    req.Headline,
		Body:        req.Body,
		Variables:   req.Variables,
		Active:      req.Active,
		UpdatedAt:   time.Now(),
	}

	if err := ws.Templates.Update(tpl); err != nil {
		respondError(w, http.StatusNotFound, "failed to update template", err)
		return
	}
	ws.Cache.Invalidate()

	respondJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	templateID := chi.URLParam(r, "templateId")

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	if err := ws.Templates.Delete(templateID); err != nil {
		respondError(w, http.StatusNotFound, "template not found", err)
		return
	}
	ws.Cache.Invalidate()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" || req.Expression == "" {
		respondError(w, http.StatusBadRequest, "name and expression are required", nil)
		return
	}

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	now := time.Now()
	rule := &insightrules.Rule{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Expression: req.Expression,
		Message:    req.Message,
		Impact:     req.Impact,
		Active:     req.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := ws.Rules.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":         rule.ID,
		"name":       rule.Name,
		"expression": rule.Expression,
		"active":     rule.Active,
	})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	rows, err := s.db.Query(`
		SELECT id, name, expression, message, impact, active, created_at, updated_at
		FROM insight_rules
		WHERE workspace_id = $1
		ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	defer rows.Close()

	rulesList := []*insightrules.Rule{}
	for rows.Next() {
		var rule insightrules.Rule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Expression, &rule.Message,
			&rule.Impact, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan rule", err)
			return
		}
		rulesList = append(rulesList, &rule)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"rules": rulesList,
	})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	ruleID := chi.URLParam(r, "ruleId")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	rule := &insightrules.Rule{
		ID:         ruleID,
		Name:       req.Name,
		Expression: req.Expression,
		Message:    req.Message,
		Impact:     req.Impact,
		Active:     req.Active,
		UpdatedAt:  time.Now(),
	}

	if err := ws.Rules.UpdateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")
	ruleID := chi.URLParam(r, "ruleId")

	ws, err := s.manager.Get(workspaceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "workspace not found", err)
		return
	}

	if err := ws.Rules.DeleteRule(ruleID); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	server, err := NewServer(databaseURL)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
