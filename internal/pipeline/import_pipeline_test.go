package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"racc/pkg/models"
)

type memorySink struct {
	mu    sync.Mutex
	rules []models.Rule
	fails int
}

func (s *memorySink) InsertRules(ctx context.Context, rules []models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("transient write failure")
	}
	s.rules = append(s.rules, rules...)
	return nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *memoryAudit) WriteEntries(entries []models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
	return nil
}

func TestRunValidatesAndPersistsRules(t *testing.T) {
	sink := &memorySink{}
	audit := &memoryAudit{}
	p := NewImportPipeline(sink, audit, "importer", 2, 2, 50*time.Millisecond)

	rules := []models.Rule{
		{CustomerID: 7, RuleID: "47-1", Name: "a", XMLContent: `<ruleset><rule name="a"/></ruleset>`},
		{CustomerID: 7, RuleID: "47-2", Name: "b"},
		{CustomerID: 7, RuleID: "47-3", Name: "c", XMLContent: `<ruleset><rule name="c"`},
		{CustomerID: 7, RuleID: "47-4", Name: "d", XMLContent: `<ruleset><rule name="d"/></ruleset>`},
	}

	stats, err := p.Run(context.Background(), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Imported != 3 {
		t.Fatalf("expected 3 imported, got %d", stats.Imported)
	}
	if stats.Invalid != 1 || len(stats.Errors) != 1 {
		t.Fatalf("expected 1 invalid record, got %+v", stats)
	}
	if len(sink.rules) != 3 {
		t.Fatalf("sink holds %d rules, want 3", len(sink.rules))
	}
	if len(audit.entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(audit.entries))
	}
	for _, e := range audit.entries {
		if e.Action != "rule.import" || e.Actor != "importer" {
			t.Fatalf("unexpected audit entry: %+v", e)
		}
	}
}

func TestRunRetriesFailedBatches(t *testing.T) {
	sink := &memorySink{fails: 1}
	p := NewImportPipeline(sink, nil, "importer", 1, 10, 50*time.Millisecond)

	rules := []models.Rule{{CustomerID: 7, RuleID: "47-1", Name: "a"}}
	stats, err := p.Run(context.Background(), rules)
	if err == nil {
		t.Fatalf("expected the first write error to be reported")
	}
	if stats.Imported != 1 || len(sink.rules) != 1 {
		t.Fatalf("batch must be retried until it lands: %+v", stats)
	}
}

func TestRunEmptyInput(t *testing.T) {
	p := NewImportPipeline(&memorySink{}, nil, "importer", 0, 0, 0)
	stats, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Imported != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
