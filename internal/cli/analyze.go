package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/diligence/internal/analysis"
	"github.com/raphaelgruber/diligence/internal/export"
	"github.com/raphaelgruber/diligence/internal/llm"
	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/raphaelgruber/diligence/internal/service"
	"github.com/raphaelgruber/diligence/internal/staging"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const noContentText = "No content was extracted from this file."

// errAnalysisFailed is returned after the failure was already reported.
var errAnalysisFailed = errors.New("analysis failed")

// newGenerator builds the model behind the agents; tests replace it.
var newGenerator = func(ctx context.Context) (analysis.Generator, error) {
	model, err := llm.NewModel(ctx, cfg, collector)
	if err != nil {
		return nil, err
	}
	return model, nil
}

var (
	analyzeKind     string
	analyzeStartup  string
	analyzeOut      string
	analyzeFormat   string
	analyzeShowData bool
	analyzeCleanup  bool
	analyzeNoExport bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Run an investment analysis on startup documents",
	Long: `Stage the given documents, run the selected analysis in the background
and show its progress. ZIP archives are extracted; hidden files and
__MACOSX entries inside them are ignored.

Examples:
  diligence analyze deck.pdf financials.csv --startup "Acme Robotics"
  diligence analyze dataroom.zip --startup Acme --kind "Quick Assessment"
  diligence analyze deck.md --startup Acme --format txt --out reports/
  diligence analyze dataroom.zip --startup Acme --show-data --cleanup`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeKind, "kind", "k", string(models.KindFullDueDiligence), "analysis kind (see 'diligence kinds')")
	analyzeCmd.Flags().StringVarP(&analyzeStartup, "startup", "s", "", "startup name (required)")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "report file or directory (default: current directory)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", string(export.FormatMarkdown), "report format: md or txt")
	analyzeCmd.Flags().BoolVar(&analyzeShowData, "show-data", false, "print the text extracted from each file")
	analyzeCmd.Flags().BoolVar(&analyzeCleanup, "cleanup", false, "remove staged files when done")
	analyzeCmd.Flags().BoolVar(&analyzeNoExport, "no-export", false, "do not write the report to disk")
	_ = analyzeCmd.MarkFlagRequired("startup")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if strings.TrimSpace(analyzeStartup) == "" {
		return errors.New("startup name is required")
	}
	kind, err := models.ParseAnalysisKind(analyzeKind)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(analyzeFormat)
	if err != nil {
		return err
	}

	uploads, err := readUploads(args)
	if err != nil {
		return err
	}
	printSummary(stdout, uploads)

	stager := staging.NewStager(cfg.ScratchDir, cfg.TempDir)
	if analyzeCleanup {
		defer func() {
			if err := stager.Cleanup(); err != nil {
				slog.Warn("cleanup staged files", "error", err)
			}
		}()
	}

	paths, err := stager.Stage(ctx, uploads)
	if err != nil {
		return fmt.Errorf("stage uploads: %w", err)
	}
	slog.Info("uploads staged", "uploads", len(uploads), "files", len(paths))

	gen, err := newGenerator(ctx)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	pipeline := analysis.NewPipeline(gen, analysis.Config{
		StartupName: analyzeStartup,
		Metrics:     collector,
	})
	worker := service.NewWorker(pipeline, service.WorkerConfig{
		StageDelay: cfg.StageDelay,
		Timeout:    cfg.AnalysisTimeout,
		Metrics:    collector,
	})
	session := service.NewSession(worker)

	record, _, err := session.Start(ctx, paths, kind)
	if err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}

	snap, interactive, err := watch(ctx, session, record, stdout)
	if err != nil {
		return err
	}

	// The progress UI already showed the outcome line.
	if snap.Failed() {
		if !interactive {
			fmt.Fprintf(stderr, "An error occurred: %s\n", *snap.Error)
		}
		return errAnalysisFailed
	}

	return presentResult(stdout, snap, kind, format, !interactive)
}

// watch observes the job until it is terminal, with the progress bar on a
// terminal and plain lines otherwise. interactive reports which one ran.
func watch(ctx context.Context, session *service.Session, record *service.StatusRecord, out io.Writer) (snap models.Snapshot, interactive bool, err error) {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		snap, err := runProgressUI(ctx, record, cfg.PollInterval)
		if err != nil {
			return snap, true, err
		}
		if err := session.Finish(); err != nil {
			return snap, true, err
		}
		return snap, true, nil
	}

	renderer := newLineRenderer(out)
	snap, err = session.Observe(ctx, cfg.PollInterval, renderer.Render)
	if errors.Is(err, context.Canceled) {
		return snap, false, errInterrupted
	}
	return snap, false, err
}

// presentResult prints the report and writes the export. announce prints
// the completion line, which the progress UI shows on its own.
func presentResult(w io.Writer, snap models.Snapshot, kind models.AnalysisKind, format export.Format, announce bool) error {
	if announce {
		fmt.Fprintln(w, "Analysis complete!")
	}
	fmt.Fprintf(w, "\nInvestment Analysis: %s\n\n", analyzeStartup)

	report := ""
	if snap.Report != nil {
		report = *snap.Report
	}
	fmt.Fprintln(w, report)

	if !analyzeNoExport {
		path, err := export.Write(analyzeOut, report, export.Metadata{
			Startup:     analyzeStartup,
			Kind:        string(kind),
			JobID:       snap.JobID,
			Agents:      snap.Stages,
			GeneratedAt: time.Now().UTC(),
		}, format)
		if err != nil {
			return fmt.Errorf("export report: %w", err)
		}
		fmt.Fprintf(w, "Report saved to %s\n", path)
	}

	if analyzeShowData {
		printFileData(w, snap.FileData)
	}
	if verbose {
		fmt.Fprintln(w)
		printStats(w, collector.Snapshot())
	}
	return nil
}

// readUploads loads the named files as upload blobs.
func readUploads(args []string) ([]models.UploadedBlob, error) {
	uploads := make([]models.UploadedBlob, 0, len(args))
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("read upload: %s is a directory (zip it first)", arg)
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		uploads = append(uploads, models.UploadedBlob{Name: filepath.Base(arg), Data: data})
	}
	return uploads, nil
}

func printSummary(w io.Writer, uploads []models.UploadedBlob) {
	counts := staging.Summarize(uploads)
	fmt.Fprintf(w, "Documents (%d):\n", len(uploads))
	for _, ext := range staging.SummaryKeys(counts) {
		fmt.Fprintf(w, "  %-8s %d\n", ext, counts[ext])
	}
	fmt.Fprintln(w)
}

func printFileData(w io.Writer, data models.FileData) {
	fmt.Fprintln(w, "\nExtracted Text from Uploaded Files")
	fmt.Fprintln(w, "═══════════════════════════════════════")
	if len(data) == 0 {
		fmt.Fprintln(w, "No extracted data is available to display.")
		return
	}

	for _, path := range slices.Sorted(maps.Keys(data)) {
		content := data[path].Content
		if content == "" {
			content = noContentText
		}
		fmt.Fprintf(w, "\nContent of: %s\n", filepath.Base(path))
		fmt.Fprintln(w, "---------------------------------------")
		fmt.Fprintln(w, content)
	}
}
