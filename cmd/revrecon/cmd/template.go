package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"revenue-reconciliation-service/internal/parsers"
	"revenue-reconciliation-service/pkg/errors"
)

var templateCmd = &cobra.Command{
	Use:   "template [table]",
	Short: "Print the CSV skeleton for one input table",
	Long: `Template prints the canonical header row plus one illustrative data row
for the named table. Without an argument it lists the available tables.

Examples:
  revrecon template
  revrecon template subscriptions > subscriptions.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplate,
}

func init() {
	rootCmd.AddCommand(templateCmd)
}

func runTemplate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Available tables: %s\n",
			strings.Join(parsers.TemplateNames(), ", "))
		return nil
	}

	tpl, err := parsers.Template(args[0])
	if err != nil {
		return errors.New(errors.CategoryFile, errors.CodeFileNotFound,
			fmt.Sprintf("no template for table %q", args[0])).
			WithSuggestion("Recognized tables: " + strings.Join(parsers.TemplateNames(), ", "))
	}
	fmt.Fprint(cmd.OutOrStdout(), tpl)
	return nil
}
