package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/diligence/internal/analysis"
	"github.com/raphaelgruber/diligence/internal/export"
	"github.com/raphaelgruber/diligence/internal/metrics"
	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

type staticSource struct{ snap models.Snapshot }

func (s staticSource) Snapshot() models.Snapshot { return s.snap }

func TestLineRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newLineRenderer(&buf)

	r.Render(models.Snapshot{StatusText: "Not started"})
	r.Render(models.Snapshot{StatusText: "Not started"})
	r.Render(models.Snapshot{Progress: 0.02, StatusText: "Starting analysis pipeline..."})
	r.Render(models.Snapshot{Progress: 0.475, StatusText: "Running Team Agent..."})
	r.Render(models.Snapshot{Progress: 1, StatusText: "Error", Error: ptr("boom")})

	want := "[  0%] Not started\n" +
		"[  2%] Starting analysis pipeline...\n" +
		"[ 47%] Running Team Agent...\n" +
		"[100%] Error: boom\n"
	assert.Equal(t, want, buf.String())
}

func TestProgressModel(t *testing.T) {
	running := models.Snapshot{Progress: 0.5, StatusText: "Running Market Agent...", Stages: []string{"team", "market"}}
	m := newProgressModel(staticSource{snap: running}, 10*time.Millisecond)

	assert.Equal(t, "Loading job status...\n", m.renderContent())

	msg := m.readSnapshot()()
	next, cmd := m.Update(msg)
	m = next.(progressModel)
	require.NotNil(t, cmd, "running job should schedule another tick")
	assert.False(t, m.done)

	view := m.renderContent()
	assert.Contains(t, view, "Running Market Agent...")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, "2 agents ran")

	next, _ = m.Update(tickMsg(time.Now()))
	m = next.(progressModel)
	assert.False(t, m.done)

	next, _ = m.Update(snapshotMsg(models.Snapshot{Progress: 1, StatusText: "Analysis complete", Report: ptr("# R")}))
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.Contains(t, m.renderContent(), "Analysis complete!")

	failed := newProgressModel(staticSource{}, 0)
	next, _ = failed.Update(snapshotMsg(models.Snapshot{Progress: 1, StatusText: "Error", Error: ptr("provider down")}))
	failed = next.(progressModel)
	assert.True(t, failed.done)
	assert.Contains(t, failed.renderContent(), "An error occurred: provider down")
}

func TestProgressModelQuit(t *testing.T) {
	m := newProgressModel(staticSource{}, time.Second)
	next, cmd := m.Update(tea.KeyPressMsg{Code: 'q', Text: "q"})
	m = next.(progressModel)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Contains(t, m.renderContent(), "interrupted")
}

func TestPrintKinds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printKinds(&buf))

	out := buf.String()
	assert.Contains(t, out, "full-due-diligence")
	assert.Contains(t, out, "team, market, financial, product, risk")
	assert.Contains(t, out, "quick_assessment")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2+len(models.AnalysisKinds()))
}

func TestPrintStats(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordLLMUsage(metrics.OpLLMGenerate, 20*time.Millisecond, 100, 40)
	c.RecordTiming(metrics.OpAgent, 30*time.Millisecond)

	var buf bytes.Buffer
	printStats(&buf, c.Snapshot())
	out := buf.String()
	assert.Contains(t, out, "agent:")
	assert.Contains(t, out, "llm_generate:")
	assert.Contains(t, out, "Tokens:   100 in / 40 out")

	buf.Reset()
	printStats(&buf, metrics.NewCollector().Snapshot())
	assert.Contains(t, buf.String(), "No operations recorded.")
}

func TestReadUploads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	uploads, err := readUploads([]string{path})
	require.NoError(t, err)
	assert.Equal(t, []models.UploadedBlob{{Name: "deck.pdf", Data: []byte("%PDF")}}, uploads)

	_, err = readUploads([]string{dir})
	assert.ErrorContains(t, err, "is a directory")

	_, err = readUploads([]string{filepath.Join(dir, "missing.pdf")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrintSummaryAndFileData(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []models.UploadedBlob{{Name: "a.pdf"}, {Name: "b.PDF"}, {Name: "room.zip"}, {Name: "README"}})
	assert.Equal(t, "Documents (4):\n  other    1\n  pdf      2\n  zip      1\n\n", buf.String())

	buf.Reset()
	printFileData(&buf, nil)
	assert.Contains(t, buf.String(), "No extracted data is available to display.")

	buf.Reset()
	printFileData(&buf, models.FileData{
		"/s/extracted_x/deck.pdf": {Kind: "pdf"},
		"/s/tmp/notes.txt":        {Content: "ARR 1M", Kind: "txt"},
	})
	out := buf.String()
	assert.Contains(t, out, "Content of: deck.pdf\n---------------------------------------\n"+noContentText)
	assert.Contains(t, out, "Content of: notes.txt\n---------------------------------------\nARR 1M")
	assert.Less(t, strings.Index(out, "deck.pdf"), strings.Index(out, "notes.txt"))
}

type scriptedGenerator struct{ err error }

func (g scriptedGenerator) GenerateWithSystem(_ context.Context, system, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if strings.Contains(system, "lead partner") {
		return "# Investment Opportunity Analysis\n\n## Executive Summary\n**Promising.**", nil
	}
	return "fine", nil
}

// runCLI executes the root command with isolated config and returns stdout and stderr.
func runCLI(t *testing.T, gen analysis.Generator, args ...string) (string, string, error) {
	t.Helper()

	tmp := t.TempDir()
	t.Setenv("DILIGENCE_CONFIG", "")
	t.Setenv("DILIGENCE_SCRATCH_DIR", filepath.Join(tmp, "scratch"))
	t.Setenv("DILIGENCE_TEMP_DIR", tmp)
	t.Setenv("DILIGENCE_POLL_INTERVAL", "10ms")
	t.Setenv("DILIGENCE_STAGE_DELAY", "50ms")
	t.Setenv("DILIGENCE_LOG_FILE", filepath.Join(tmp, "diligence.log"))

	orig := newGenerator
	newGenerator = func(context.Context) (analysis.Generator, error) { return gen, nil }
	t.Cleanup(func() { newGenerator = orig })

	analyzeKind = string(models.KindFullDueDiligence)
	analyzeStartup, analyzeOut, analyzeFormat = "", "", "md"
	analyzeShowData, analyzeCleanup, analyzeNoExport, verbose = false, false, false, false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := execute(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	room := filepath.Join(dir, "room.zip")
	writeZip(t, room, map[string]string{
		"deck.md":           "# Acme\nRobots.",
		"__MACOSX/._deck.md": "junk",
	})
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("ARR 1M"), 0o644))
	outDir := t.TempDir()

	stdout, stderr, err := runCLI(t, scriptedGenerator{},
		"analyze", room, notes,
		"--startup", "Acme Robotics",
		"--kind", "team-evaluation",
		"--format", "txt",
		"--out", outDir,
		"--show-data",
		"--cleanup",
	)
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "Documents (2):")
	assert.Contains(t, stdout, "] Running Team Agent...")
	assert.Contains(t, stdout, "[100%] Analysis complete")
	assert.Contains(t, stdout, "Analysis complete!")
	assert.Contains(t, stdout, "Investment Analysis: Acme Robotics")
	assert.Contains(t, stdout, "**Promising.**")
	assert.Contains(t, stdout, "Content of: deck.md")
	assert.Contains(t, stdout, "Content of: notes.txt")
	assert.NotContains(t, stdout, "._deck.md")

	exported := filepath.Join(outDir, "Acme_Robotics_investment_analysis.txt")
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Executive Summary\nPromising.")
	assert.Contains(t, stdout, "Report saved to "+exported)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAnalyzeCommandFailure(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("ARR 1M"), 0o644))

	stdout, stderr, err := runCLI(t, scriptedGenerator{err: errors.New("provider down")},
		"analyze", notes, "--startup", "Acme", "--kind", "Market Analysis", "--no-export")
	require.ErrorIs(t, err, errAnalysisFailed)
	assert.Contains(t, stderr, "An error occurred: all agents failed")
	assert.Contains(t, stdout, "Error: all agents failed")
	assert.NotContains(t, stdout, "Analysis complete!")
	assert.Nil(t, logCleanup, "log file should be closed after a failed run")
}

func TestAnalyzeCommandValidation(t *testing.T) {
	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	_, _, err := runCLI(t, scriptedGenerator{}, "analyze", notes, "--startup", "Acme", "--kind", "vibes")
	assert.Error(t, err)

	_, _, err = runCLI(t, scriptedGenerator{}, "analyze", notes, "--startup", "Acme", "--format", "docx")
	assert.ErrorContains(t, err, "unsupported export format")

	_, _, err = runCLI(t, scriptedGenerator{}, "analyze", notes, "--startup", "  ")
	assert.ErrorContains(t, err, "startup name is required")
}

func TestProgressUIStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	running := staticSource{snap: models.Snapshot{Progress: 0.02, StatusText: "Starting analysis pipeline..."}}

	snap, err := runProgressUI(ctx, running, 10*time.Millisecond, tea.WithInput(nil), tea.WithOutput(io.Discard))
	require.ErrorIs(t, err, errInterrupted)
	assert.False(t, snap.Terminal())
}

func TestProgressUIReturnsTerminalSnapshot(t *testing.T) {
	finished := staticSource{snap: models.Snapshot{Progress: 1, StatusText: "Analysis complete", Report: ptr("# R")}}

	snap, err := runProgressUI(context.Background(), finished, 10*time.Millisecond, tea.WithInput(nil), tea.WithOutput(io.Discard))
	require.NoError(t, err)
	assert.True(t, snap.Terminal())
	require.NotNil(t, snap.Report)
	assert.Equal(t, "# R", *snap.Report)
}

func TestPresentResultCompletionLine(t *testing.T) {
	prevNoExport, prevShowData, prevVerbose, prevStartup := analyzeNoExport, analyzeShowData, verbose, analyzeStartup
	t.Cleanup(func() {
		analyzeNoExport, analyzeShowData, verbose, analyzeStartup = prevNoExport, prevShowData, prevVerbose, prevStartup
	})
	analyzeNoExport, analyzeShowData, verbose, analyzeStartup = true, false, false, "Acme"

	snap := models.Snapshot{Progress: 1, Report: ptr("# Investment Opportunity Analysis")}

	var buf bytes.Buffer
	require.NoError(t, presentResult(&buf, snap, models.KindQuickAssessment, export.FormatMarkdown, false))
	assert.NotContains(t, buf.String(), "Analysis complete!")
	assert.Contains(t, buf.String(), "Investment Analysis: Acme")

	buf.Reset()
	require.NoError(t, presentResult(&buf, snap, models.KindQuickAssessment, export.FormatMarkdown, true))
	assert.Equal(t, 1, strings.Count(buf.String(), "Analysis complete!"))
}
