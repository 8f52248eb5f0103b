package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"revenue-reconciliation-service/internal/parsers"
	"revenue-reconciliation-service/internal/reporter"
	"revenue-reconciliation-service/internal/scoring"
	"revenue-reconciliation-service/internal/session"
	"revenue-reconciliation-service/pkg/errors"
)

var (
	accountsFile      string
	customersFile     string
	subscriptionsFile string
	invoicesFile      string
	paymentsFile      string
	creditNotesFile   string

	currencyFlag    string
	periodStartFlag string
	periodEndFlag   string
	toleranceFlag   string

	bypassReview bool
	outputFormat string
	outputFile   string
	reportFile   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation end to end from CSV files",
	Long: `Reconcile ingests the six input tables, resolves identity, generates
revenue segments, allocates billing documents, classifies variances, and
prints the structural integrity summary.

Review-band identity matches block a run unless --bypass-review is set;
bypassed candidates stay unmatched.

Examples:
  # Console summary
  revrecon reconcile --accounts accounts.csv --customers customers.csv \
    --subscriptions subs.csv --invoices invoices.csv --payments payments.csv

  # Account summaries as CSV, with a PDF report on the side
  revrecon reconcile --accounts a.csv --customers c.csv --subscriptions s.csv \
    --invoices i.csv --payments p.csv --credit-notes cn.csv \
    --output-format csv --output-file accounts.csv --report score.pdf

  # Narrow the analysis window and widen the tolerance
  revrecon reconcile --accounts a.csv --customers c.csv --subscriptions s.csv \
    --invoices i.csv --payments p.csv \
    --period-start 2024-01-01 --period-end 2024-06-30 --tolerance 2.50`,
	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&accountsFile, "accounts", "", "path to the accounts CSV (required)")
	reconcileCmd.Flags().StringVar(&customersFile, "customers", "", "path to the customers CSV (required)")
	reconcileCmd.Flags().StringVar(&subscriptionsFile, "subscriptions", "", "path to the subscriptions CSV (required)")
	reconcileCmd.Flags().StringVar(&invoicesFile, "invoices", "", "path to the invoices CSV (required)")
	reconcileCmd.Flags().StringVar(&paymentsFile, "payments", "", "path to the payments CSV (required)")
	reconcileCmd.Flags().StringVar(&creditNotesFile, "credit-notes", "", "path to the credit notes CSV (optional)")

	reconcileCmd.Flags().StringVar(&currencyFlag, "currency", "", "display currency code (default USD)")
	reconcileCmd.Flags().StringVar(&periodStartFlag, "period-start", "", "analysis period start, first of a month (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&periodEndFlag, "period-end", "", "analysis period end, last of a month (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&toleranceFlag, "tolerance", "", "clean-band tolerance in currency units (default 1.00)")

	reconcileCmd.Flags().BoolVar(&bypassReview, "bypass-review", false, "start even with pending identity review candidates")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, csv, json")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&reportFile, "report", "", "also write the PDF score report to this path")

	reconcileCmd.MarkFlagRequired("accounts")
	reconcileCmd.MarkFlagRequired("customers")
	reconcileCmd.MarkFlagRequired("subscriptions")
	reconcileCmd.MarkFlagRequired("invoices")
	reconcileCmd.MarkFlagRequired("payments")

	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("bypass-review", reconcileCmd.Flags().Lookup("bypass-review"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	bypassReview = viper.GetBool("bypass-review")

	validFormats := map[string]bool{"console": true, "csv": true, "json": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format %q. Valid formats: console, csv, json", outputFormat)
	}

	required := map[string]string{
		"accounts":      accountsFile,
		"customers":     customersFile,
		"subscriptions": subscriptionsFile,
		"invoices":      invoicesFile,
		"payments":      paymentsFile,
	}
	for table, path := range required {
		if err := checkReadableFile(table, path); err != nil {
			return err
		}
	}
	if creditNotesFile != "" {
		if err := checkReadableFile("credit_notes", creditNotesFile); err != nil {
			return err
		}
	}
	return nil
}

func checkReadableFile(table, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err).WithContext("table", table)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err).WithContext("table", table)
	}
	if info.IsDir() {
		return errors.Newf(errors.CategoryFile, errors.CodeFileNotFound,
			"%s is a directory, expected a file", path).WithContext("table", table)
	}
	return nil
}

func settingsFromFlags() (session.Settings, error) {
	raw := map[string]string{}
	if currencyFlag != "" {
		raw["currency"] = currencyFlag
	}
	if periodStartFlag != "" {
		raw["period_start"] = periodStartFlag
	}
	if periodEndFlag != "" {
		raw["period_end"] = periodEndFlag
	}
	if toleranceFlag != "" {
		raw["tolerance"] = toleranceFlag
	}
	return session.ParseSettings(raw)
}

func openSources() (parsers.TableSources, func(), error) {
	paths := map[string]string{
		parsers.TableAccounts:      accountsFile,
		parsers.TableCustomers:     customersFile,
		parsers.TableSubscriptions: subscriptionsFile,
		parsers.TableInvoices:      invoicesFile,
		parsers.TablePayments:      paymentsFile,
	}
	if creditNotesFile != "" {
		paths[parsers.TableCreditNotes] = creditNotesFile
	}

	sources := parsers.TableSources{}
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	for table, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err).WithContext("table", table)
		}
		opened = append(opened, f)
		sources[table] = f
	}
	return sources, closeAll, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromFlags()
	if err != nil {
		return err
	}
	sources, closeSources, err := openSources()
	if err != nil {
		return err
	}
	defer closeSources()

	svc := session.NewService(session.NewStore())
	sess := svc.Create(settings)

	result, res, err := svc.Validate(sess.ID, sources)
	if err != nil {
		return err
	}
	if !result.Valid {
		for _, rowErr := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s\n", rowErr.String())
		}
		return errors.Newf(errors.CategoryValidation, errors.CodeInvalidData,
			"%d validation errors in the input tables", len(result.Errors)).
			WithSuggestion("Fix the rows listed above and rerun")
	}
	if len(res.PendingReview) > 0 && !bypassReview {
		return errors.IdentityReviewRequired(len(res.PendingReview)).
			WithSuggestion("Rerun with --bypass-review, or arbitrate the matches through the API")
	}

	if err := svc.Analyze(sess.ID, bypassReview); err != nil {
		return err
	}
	svc.Wait()

	snap, err := svc.Status(sess.ID)
	if err != nil {
		return err
	}
	if snap.Status != session.StatusCompleted {
		return errors.Newf(errors.CategoryReconciliation, errors.CodeProcessingError,
			"analysis did not complete: %s", snap.Error)
	}

	dash, err := svc.Dashboard(sess.ID)
	if err != nil {
		return err
	}
	summaries, err := svc.Accounts(sess.ID, session.AccountFilters{})
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter()
	if err != nil {
		return err
	}
	defer closeOut()

	exporter := reporter.NewExporter()
	switch outputFormat {
	case "console":
		err = exporter.ConsoleSummary(out, dash.Score, summaries, settings.Currency)
	case "csv":
		err = exporter.AccountsCSV(out, summaries, settings.Currency, nil)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(struct {
			Score    *scoring.Score `json:"score"`
			Accounts interface{}    `json:"accounts"`
		}{Score: dash.Score, Accounts: summaries})
	}
	if err != nil {
		return err
	}

	if reportFile != "" {
		pdf, err := exporter.ScoreReportPDF(dash.Score, reporter.ReportMeta{
			PeriodStart: settings.PeriodStart,
			PeriodEnd:   settings.PeriodEnd,
			Currency:    settings.Currency,
			GeneratedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportFile, pdf, 0o644); err != nil {
			return errors.FileError(errors.CodeFilePermission, reportFile, err)
		}
	}
	return nil
}

func outputWriter() (io.Writer, func(), error) {
	if outputFile == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFilePermission, outputFile, err)
	}
	return f, func() { f.Close() }, nil
}
