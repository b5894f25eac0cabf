package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tally/internal/ledger"
	tallylog "tally/internal/log"
)

// Auditor runs one consistency check. *LedgerService implements it.
type Auditor interface {
	Audit(ctx context.Context) (ledger.Report, error)
}

// AuditProcessorConfig holds configuration for the audit processor
type AuditProcessorConfig struct {
	// Interval is how often to audit (default: 1h)
	Interval time.Duration

	// RunOnStart audits immediately when the processor starts (default: true)
	RunOnStart bool
}

// DefaultAuditProcessorConfig returns sensible defaults
func DefaultAuditProcessorConfig() AuditProcessorConfig {
	return AuditProcessorConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// AuditProcessor periodically audits the ledger. It reports drift and never
// repairs it.
type AuditProcessor struct {
	auditor Auditor
	config  AuditProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	last    ledger.Report
	hasLast bool
	runs    int
}

func NewAuditProcessor(auditor Auditor, config AuditProcessorConfig) *AuditProcessor {
	return &AuditProcessor{
		auditor: auditor,
		config:  config,
	}
}

// Start begins the audit loop. Returns an error if already running.
func (p *AuditProcessor) Start(ctx context.Context) error {
	if p.config.Interval <= 0 {
		return fmt.Errorf("audit interval must be positive, got %v", p.config.Interval)
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("audit processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Audit processor started", "interval", p.config.Interval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *AuditProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Audit processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Audit processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *AuditProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastReport returns the most recent successful audit.
func (p *AuditProcessor) LastReport() (ledger.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Runs returns how many audits have been attempted.
func (p *AuditProcessor) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func (p *AuditProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.RunOnStart {
		p.RunOnce(ctx)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single audit and records the report.
func (p *AuditProcessor) RunOnce(ctx context.Context) {
	report, err := p.auditor.Audit(ctx)

	p.mu.Lock()
	p.runs++
	if err == nil {
		p.last = report
		p.hasLast = true
	}
	p.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "Scheduled audit failed",
			tallylog.FieldComponent, tallylog.ComponentAudit,
			tallylog.FieldError, err)
		return
	}
	if report.Consistent {
		slog.DebugContext(ctx, "Scheduled audit found no drift",
			"orphans", len(report.Orphans))
		return
	}
	slog.WarnContext(ctx, "Scheduled audit found drift",
		tallylog.FieldComponent, tallylog.ComponentAudit,
		tallylog.FieldMismatches, len(report.Mismatches),
		"stored_total", report.StoredTotal,
		"theoretical_total", report.TheoreticalTotal)
}
