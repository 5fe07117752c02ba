// Package server exposes the analysis core over HTTP. Tenant scoping is
// enforced here: the customer ID path segment becomes the store filter, and
// the pure analysis packages only ever see pre-filtered slices.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"racc/internal/alarmgen"
	"racc/internal/analyzer"
	"racc/internal/cache"
	"racc/internal/logger"
	"racc/internal/rulegraph"
	"racc/internal/sigmap"
	"racc/internal/store"
	"racc/pkg/models"
)

// AuditSink records mutating API operations. May be nil.
type AuditSink interface {
	WriteEntries(entries []models.AuditEntry) error
}

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Settings     alarmgen.Settings
	QualityTiers models.QualityTiers
}

// Server wires the analysis core to its collaborators.
type Server struct {
	store    *store.Store
	mapper   *sigmap.Mapper
	cache    *cache.Cache
	audit    AuditSink
	settings alarmgen.Settings
	tiers    models.QualityTiers
	httpSrv  *http.Server
}

// New builds the server and its routes.
func New(cfg Config, st *store.Store, mapper *sigmap.Mapper, c *cache.Cache, audit AuditSink) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.Settings == (alarmgen.Settings{}) {
		cfg.Settings = alarmgen.DefaultSettings()
	}
	if cfg.QualityTiers == (models.QualityTiers{}) {
		cfg.QualityTiers = models.DefaultQualityTiers()
	}

	s := &Server{
		store:    st,
		mapper:   mapper,
		cache:    c,
		audit:    audit,
		settings: cfg.Settings,
		tiers:    cfg.QualityTiers,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", instrument("health", s.handleHealth))
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /customers", instrument("customers", s.handleCustomers))
	mux.HandleFunc("GET /customers/{id}", instrument("customer", s.handleCustomer))
	mux.HandleFunc("GET /customers/{id}/settings", instrument("settings", s.handleSettings))
	mux.HandleFunc("PUT /customers/{id}/settings", instrument("settings_update", s.handleUpdateSettings))
	mux.HandleFunc("GET /customers/{id}/rules/{ruleID}/logic", instrument("rule_logic", s.handleRuleLogic))
	mux.HandleFunc("GET /customers/{id}/analysis/relationships", instrument("relationships", s.handleRelationships))
	mux.HandleFunc("GET /customers/{id}/analysis/coverage", instrument("coverage", s.handleCoverage))
	mux.HandleFunc("GET /customers/{id}/analysis/event-usage", instrument("event_usage", s.handleEventUsage))
	mux.HandleFunc("POST /customers/{id}/analysis/generate-missing", instrument("generate_missing", s.handleGenerateMissing))

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": "ok"})
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.store.Customers(r.Context())
	if err != nil {
		logger.Errorf("Failed to list customers: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "customers": customers})
}

func (s *Server) handleCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}
	customer, err := s.store.Customer(r.Context(), customerID)
	if err != nil {
		logger.Errorf("Failed to load customer %d: %v", customerID, err)
		writeError(w, http.StatusInternalServerError, "failed to load customer")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "customer": customer})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}
	settings := s.settings
	cached := false
	if c, hit := s.cache.Settings(r.Context(), customerID); hit {
		settings = *c
		cached = true
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "settings": settings, "cached": cached})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "settings storage unavailable")
		return
	}

	var settings alarmgen.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.cache.PutSettings(r.Context(), customerID, settings); err != nil {
		logger.Errorf("Failed to store settings for customer %d: %v", customerID, err)
		writeError(w, http.StatusInternalServerError, "failed to store settings")
		return
	}
	s.auditAction(customerID, "settings.update", "generation settings replaced")

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "settings": settings})
}

func (s *Server) handleRuleLogic(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}
	ruleID := r.PathValue("ruleID")

	rules, err := s.store.RulesByCustomer(r.Context(), customerID)
	if err != nil {
		logger.Errorf("Failed to load rules for customer %d: %v", customerID, err)
		writeError(w, http.StatusInternalServerError, "failed to load rules")
		return
	}

	var rule *models.Rule
	for i := range rules {
		if rules[i].RuleID == ruleID {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	graph, err := rulegraph.Parse(rule.XMLContent)
	if err != nil {
		var parseErr *rulegraph.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusUnprocessableEntity, parseErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to parse rule logic")
		return
	}

	layout := rulegraph.Layout(graph, rulegraph.LayoutOptions{})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"rule_id":         rule.RuleID,
		"nodes":           layout.Nodes,
		"edges":           layout.Edges,
		"primary_node_id": layout.PrimaryNodeID,
	})
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}
	rules, alarms, ok := s.loadCustomerData(w, r, customerID)
	if !ok {
		return
	}

	det := analyzer.DetectRelationships(rules, alarms, s.mapper)
	qualities := make([]models.MatchQuality, len(det.Relationships))
	for i := range det.Relationships {
		qualities[i] = det.Relationships[i].Quality(s.tiers)
	}

	// Relationships are recomputed evidence; the stored rows are a snapshot
	// for reporting queries, so a write failure is not the caller's problem.
	if err := s.store.ReplaceRelationships(r.Context(), customerID, det.Relationships); err != nil {
		logger.Warnf("Failed to persist relationship snapshot for customer %d: %v", customerID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"relationships":      det.Relationships,
		"qualities":          qualities,
		"unmatched_rules":    det.UnmatchedRules,
		"unmatched_alarms":   det.UnmatchedAlarms,
		"event_overlap_only": det.EventOverlapOnly,
	})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}

	if summary, hit := s.cache.Coverage(r.Context(), customerID); hit {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "coverage": summary, "cached": true})
		return
	}

	rules, alarms, ok := s.loadCustomerData(w, r, customerID)
	if !ok {
		return
	}

	det := analyzer.DetectRelationships(rules, alarms, s.mapper)
	summary := analyzer.ComputeCoverage(rules, alarms, det)
	if err := s.cache.PutCoverage(r.Context(), customerID, summary); err != nil {
		logger.Warnf("Failed to cache coverage for customer %d: %v", customerID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "coverage": summary})
}

func (s *Server) handleEventUsage(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	rules, alarms, ok := s.loadCustomerData(w, r, customerID)
	if !ok {
		return
	}

	usage := analyzer.ComputeEventUsage(rules, alarms, s.mapper, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "event_usage": usage})
}

type generateRequest struct {
	MinSeverity *int `json:"min_severity"`
	MaxSeverity *int `json:"max_severity"`
}

func (s *Server) handleGenerateMissing(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromPath(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var rng *alarmgen.SeverityRange
	if req.MinSeverity != nil || req.MaxSeverity != nil {
		rng = &alarmgen.SeverityRange{Min: 0, Max: 100}
		if req.MinSeverity != nil {
			rng.Min = *req.MinSeverity
		}
		if req.MaxSeverity != nil {
			rng.Max = *req.MaxSeverity
		}
	}

	rules, alarms, ok := s.loadCustomerData(w, r, customerID)
	if !ok {
		return
	}

	settings := s.settings
	if cached, hit := s.cache.Settings(r.Context(), customerID); hit {
		settings = *cached
	}

	result, err := alarmgen.Synthesize(rules, alarms, settings, rng)
	if err != nil {
		var cfgErr *alarmgen.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "alarm generation failed")
		return
	}

	if err := s.store.InsertAlarms(r.Context(), result.Created); err != nil {
		logger.Errorf("Failed to persist generated alarms for customer %d: %v", customerID, err)
		writeError(w, http.StatusInternalServerError, "failed to persist generated alarms")
		return
	}
	if err := s.cache.Invalidate(r.Context(), customerID); err != nil {
		logger.Warnf("Failed to invalidate cache for customer %d: %v", customerID, err)
	}
	s.auditGeneration(customerID, len(result.Created))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"created": result.Created,
		"skipped": result.Skipped,
	})
}

func (s *Server) auditGeneration(customerID int64, created int) {
	if created == 0 {
		return
	}
	s.auditAction(customerID, "alarm.generate", strconv.Itoa(created)+" alarms created")
}

func (s *Server) auditAction(customerID int64, action, detail string) {
	if s.audit == nil {
		return
	}
	entry := models.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		CustomerID: customerID,
		Actor:      "api",
		Action:     action,
		Detail:     detail,
	}
	if err := s.audit.WriteEntries([]models.AuditEntry{entry}); err != nil {
		logger.Errorf("Failed to write audit entry: %v", err)
	}
}

func (s *Server) loadCustomerData(w http.ResponseWriter, r *http.Request, customerID int64) ([]models.Rule, []models.Alarm, bool) {
	rules, err := s.store.RulesByCustomer(r.Context(), customerID)
	if err != nil {
		logger.Errorf("Failed to load rules for customer %d: %v", customerID, err)
		writeError(w, http.StatusInternalServerError, "failed to load rules")
		return nil, nil, false
	}
	alarms, err := s.store.AlarmsByCustomer(r.Context(), customerID)
	if err != nil {
		logger.Errorf("Failed to load alarms for customer %d: %v", customerID, err)
		writeError(w, http.StatusInternalServerError, "failed to load alarms")
		return nil, nil, false
	}
	return rules, alarms, true
}

func customerIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid customer id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}
