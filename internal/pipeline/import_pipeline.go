// Package pipeline runs the bulk rule import: parsed rule records flow
// through logic-compile validation workers, then into batched store writes
// with an audit trail. Workers share nothing but channels.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"racc/internal/logger"
	"racc/internal/rulegraph"
	"racc/pkg/models"
)

// RuleSink persists validated rule batches.
type RuleSink interface {
	InsertRules(ctx context.Context, rules []models.Rule) error
}

// AuditSink records import audit entries. May be nil.
type AuditSink interface {
	WriteEntries(entries []models.AuditEntry) error
}

// ImportPipeline validates and persists rules concurrently.
type ImportPipeline struct {
	sink          RuleSink
	audit         AuditSink
	actor         string
	workers       int
	batchSize     int
	flushInterval time.Duration
}

// ImportStats summarizes one pipeline run.
type ImportStats struct {
	Imported int      `json:"imported"`
	Invalid  int      `json:"invalid"`
	Errors   []string `json:"errors,omitempty"`
}

// NewImportPipeline creates an import pipeline.
func NewImportPipeline(sink RuleSink, audit AuditSink, actor string, workers, batchSize int, flushInterval time.Duration) *ImportPipeline {
	return &ImportPipeline{
		sink:          sink,
		audit:         audit,
		actor:         actor,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

type validatedRule struct {
	rule models.Rule
	err  error
}

// Run validates every rule's embedded logic and persists the valid ones in
// batches. A rule whose XML fails to compile is counted and reported without
// stopping its siblings.
func (p *ImportPipeline) Run(ctx context.Context, rules []models.Rule) (ImportStats, error) {
	var stats ImportStats
	if len(rules) == 0 {
		return stats, nil
	}

	if p.workers <= 0 {
		p.workers = 4
	}
	if p.batchSize <= 0 {
		p.batchSize = 500
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	in := make(chan models.Rule, p.workers*4)
	out := make(chan validatedRule, p.workers*4)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(in, out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	go func() {
		defer close(in)
		for _, rule := range rules {
			select {
			case <-ctx.Done():
				return
			case in <- rule:
			}
		}
	}()

	err := p.writeLoop(ctx, out, &stats)
	return stats, err
}

func (p *ImportPipeline) workerLoop(in <-chan models.Rule, out chan<- validatedRule) {
	for rule := range in {
		var err error
		if rule.XMLContent != "" {
			_, err = rulegraph.Parse(rule.XMLContent)
		}
		out <- validatedRule{rule: rule, err: err}
	}
}

func (p *ImportPipeline) writeLoop(ctx context.Context, in <-chan validatedRule, stats *ImportStats) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []models.Rule
	var firstErr error

	flush := func() {
		if len(batch) == 0 {
			return
		}
		for {
			if err := p.sink.InsertRules(ctx, batch); err != nil {
				logger.Errorf("Failed to write rule batch: %v", err)
				if firstErr == nil {
					firstErr = err
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			stats.Imported += len(batch)
			p.auditBatch(batch)
			batch = nil
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			if firstErr != nil {
				return firstErr
			}
			return ctx.Err()
		case <-ticker.C:
			flush()
		case item, ok := <-in:
			if !ok {
				flush()
				return firstErr
			}
			if item.err != nil {
				stats.Invalid++
				stats.Errors = append(stats.Errors, item.rule.RuleID+": "+item.err.Error())
				logger.Warnf("Skipping rule %s with invalid logic: %v", item.rule.RuleID, item.err)
				continue
			}
			batch = append(batch, item.rule)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}

func (p *ImportPipeline) auditBatch(batch []models.Rule) {
	if p.audit == nil || len(batch) == 0 {
		return
	}
	entries := make([]models.AuditEntry, 0, len(batch))
	now := time.Now().UTC()
	for i := range batch {
		entries = append(entries, models.AuditEntry{
			ID:         uuid.NewString(),
			Timestamp:  now,
			CustomerID: batch[i].CustomerID,
			Actor:      p.actor,
			Action:     "rule.import",
			Detail:     batch[i].RuleID,
		})
	}
	if err := p.audit.WriteEntries(entries); err != nil {
		logger.Errorf("Failed to write audit entries: %v", err)
	}
}
