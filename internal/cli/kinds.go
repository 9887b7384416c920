package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/diligence/internal/analysis"
	"github.com/raphaelgruber/diligence/internal/models"
	"github.com/spf13/cobra"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the available analysis kinds",
	Long: `List the analysis kinds accepted by "diligence analyze --kind" together
with the agents each one runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printKinds(cmd.OutOrStdout())
	},
}

func printKinds(w io.Writer) error {
	fmt.Fprintf(w, "%-20s %-20s %s\n", "KIND", "SLUG", "AGENTS")
	fmt.Fprintln(w, "------------------------------------------------------------------------")

	for _, kind := range models.AnalysisKinds() {
		agents, err := analysis.AgentsFor(kind)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(agents))
		for _, a := range agents {
			names = append(names, a.Name)
		}
		fmt.Fprintf(w, "%-20s %-20s %s\n", kind, kind.Slug(), strings.Join(names, ", "))
	}
	return nil
}
