// Package analysis turns staged documents into an investment report by
// running specialist agents over them and synthesizing their findings.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/diligence/internal/llm"
	"github.com/raphaelgruber/diligence/internal/metrics"
	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/raphaelgruber/diligence/internal/parser"
	"github.com/raphaelgruber/diligence/internal/service"
)

const (
	// DefaultContextBudget is the number of document bytes sent to each agent.
	DefaultContextBudget = 24000
	minDocumentBudget    = 1500

	reportHeading = "# Investment Opportunity Analysis"
)

// Generator produces text from a system and a user prompt.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config tunes a Pipeline.
type Config struct {
	StartupName string
	// ContextBudget caps document text per prompt; zero uses DefaultContextBudget.
	ContextBudget int
	// Concurrency is the number of extraction workers.
	Concurrency int
	Metrics     *metrics.Collector
}

// Pipeline implements service.Analyzer on top of a Generator.
type Pipeline struct {
	gen Generator
	cfg Config
}

var _ service.Analyzer = (*Pipeline)(nil)

type finding struct {
	agent string
	text  string
}

// NewPipeline creates a pipeline.
func NewPipeline(gen Generator, cfg Config) *Pipeline {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	return &Pipeline{gen: gen, cfg: cfg}
}

// Analyze extracts the documents, runs the agents for kind in order and
// synthesizes a report. A fatal provider error aborts the run; other agent
// failures are noted in the report and the agent is left out of Stages.
func (p *Pipeline) Analyze(ctx context.Context, paths []string, kind models.AnalysisKind) (*service.Result, error) {
	agents, err := AgentsFor(kind)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, service.ErrNoFiles
	}

	slog.Info("analysis started", "kind", kind, "files", len(paths), "agents", len(agents))

	data, err := Extract(ctx, paths, p.cfg.Concurrency, p.cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("extract documents: %w", err)
	}
	documents := p.documentContext(data)

	var (
		findings []finding
		executed []string
		failures []error
	)
	for _, agent := range agents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		text, err := p.gen.GenerateWithSystem(ctx, agent.systemPrompt(p.cfg.StartupName), agentUserPrompt(documents))
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordTiming(metrics.OpAgent, time.Since(start))
		}

		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil {
				return nil, fmt.Errorf("agent %s: %w", agent.Name, err)
			}
			slog.Warn("agent failed", "agent", agent.Name, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", agent.Name, err))
			continue
		}

		slog.Debug("agent complete", "agent", agent.Name, "duration_ms", time.Since(start).Milliseconds())
		findings = append(findings, finding{agent: agent.Name, text: strings.TrimSpace(text)})
		executed = append(executed, agent.Name)
	}

	if len(findings) == 0 {
		return nil, fmt.Errorf("all agents failed: %w", errors.Join(failures...))
	}

	report, err := p.gen.GenerateWithSystem(ctx, synthesisSystemPrompt, synthesisUserPrompt(p.cfg.StartupName, kind, findings))
	if err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}

	slog.Info("analysis finished", "kind", kind, "agents_run", len(executed), "agents_failed", len(failures))
	return &service.Result{
		Report:   finishReport(report, failures),
		FileData: data,
		Stages:   executed,
	}, nil
}

// documentContext renders the extracted documents for prompting, in a
// stable order, splitting the byte budget evenly between them.
func (p *Pipeline) documentContext(data models.FileData) string {
	paths := make([]string, 0, len(data))
	for path := range data {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	share := parser.ShareBudget(p.cfg.ContextBudget, len(paths), minDocumentBudget)

	var sb strings.Builder
	for _, path := range paths {
		c := data[path]
		fmt.Fprintf(&sb, "## Document: %s\nType: %s | Size: %d bytes", filepath.Base(path), c.Kind, c.Size)
		if c.Title != "" && c.Title != filepath.Base(path) {
			fmt.Fprintf(&sb, " | Title: %s", c.Title)
		}
		sb.WriteString("\n\n")
		if c.Content == "" {
			sb.WriteString("(No text could be extracted; only file metadata is available.)")
		} else {
			sb.WriteString(parser.Excerpt(c.Content, share))
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// finishReport makes sure the report starts with a heading and records
// failed agents at the end.
func finishReport(report string, failures []error) string {
	report = strings.TrimSpace(report)
	if !strings.HasPrefix(report, "# ") {
		report = reportHeading + "\n\n" + report
	}
	if len(failures) == 0 {
		return report + "\n"
	}

	var sb strings.Builder
	sb.WriteString(report)
	sb.WriteString("\n\n## Analysis Notes\n")
	for _, f := range failures {
		fmt.Fprintf(&sb, "- Agent %s\n", f)
	}
	return sb.String()
}
