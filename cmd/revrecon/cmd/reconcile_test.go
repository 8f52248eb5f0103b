package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"revenue-reconciliation-service/internal/generator"
	"revenue-reconciliation-service/internal/parsers"
	"revenue-reconciliation-service/pkg/errors"
)

func TestCheckReadableFile(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{name: "valid file", path: validFile, expectError: false},
		{name: "non-existent file", path: filepath.Join(tmpDir, "missing.csv"), expectError: true},
		{name: "directory instead of file", path: tmpDir, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReadableFile("accounts", tt.path)
			if tt.expectError && err == nil {
				t.Error("Expected an error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestSettingsFromFlags(t *testing.T) {
	currencyFlag, periodStartFlag, periodEndFlag, toleranceFlag = "EUR", "2024-02-01", "2024-04-30", "2.50"
	defer func() { currencyFlag, periodStartFlag, periodEndFlag, toleranceFlag = "", "", "", "" }()

	s, err := settingsFromFlags()
	if err != nil {
		t.Fatalf("Expected the settings to parse, got %v", err)
	}
	if s.Currency != "EUR" {
		t.Errorf("Expected EUR, got %s", s.Currency)
	}
	if s.PeriodStart.Month() != 2 || s.PeriodEnd.Month() != 4 {
		t.Errorf("Unexpected period %s..%s", s.PeriodStart, s.PeriodEnd)
	}

	periodStartFlag = "2024-02-15"
	if _, err := settingsFromFlags(); !errors.Is(err, errors.CodeInvalidSetting) {
		t.Errorf("Expected a mid-month start to be rejected, got %v", err)
	}
}

func TestRunGenerate(t *testing.T) {
	generateDir = t.TempDir()
	generateSeed = generator.DefaultSeed
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	if err := runGenerate(cmd, nil); err != nil {
		t.Fatalf("Expected generate to succeed, got %v", err)
	}
	for _, table := range parsers.TableNames {
		path := filepath.Join(generateDir, table+".csv")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to exist, got %v", path, err)
		}
	}
}

func TestRunTemplate(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	if err := runTemplate(cmd, []string{"invoices"}); err != nil {
		t.Fatalf("Expected the template to print, got %v", err)
	}
	if !strings.HasPrefix(buf.String(), "invoice_id,customer_id") {
		t.Errorf("Unexpected template output: %s", buf.String())
	}

	if err := runTemplate(cmd, []string{"ledgers"}); !errors.Is(err, errors.CodeFileNotFound) {
		t.Errorf("Expected an unknown table to be refused, got %v", err)
	}
}

func TestRunReconcileOverSyntheticData(t *testing.T) {
	dir := t.TempDir()
	out := generator.New(generator.DefaultSeed).Generate()
	for _, table := range parsers.TableNames {
		path := filepath.Join(dir, table+".csv")
		if err := os.WriteFile(path, []byte(out.Tables[table]), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	accountsFile = filepath.Join(dir, "accounts.csv")
	customersFile = filepath.Join(dir, "customers.csv")
	subscriptionsFile = filepath.Join(dir, "subscriptions.csv")
	invoicesFile = filepath.Join(dir, "invoices.csv")
	paymentsFile = filepath.Join(dir, "payments.csv")
	creditNotesFile = filepath.Join(dir, "credit_notes.csv")
	outputFormat = "csv"
	outputFile = filepath.Join(dir, "summaries.csv")
	reportFile = filepath.Join(dir, "score.pdf")
	defer func() {
		accountsFile, customersFile, subscriptionsFile = "", "", ""
		invoicesFile, paymentsFile, creditNotesFile = "", "", ""
		outputFormat, outputFile, reportFile = "console", "", ""
		bypassReview = false
	}()

	// The planted fuzzy names block the run until review is bypassed.
	bypassReview = false
	if err := runReconcile(&cobra.Command{}, nil); !errors.Is(err, errors.CodeIdentityReviewRequired) {
		t.Fatalf("Expected the pending review to block the run, got %v", err)
	}

	bypassReview = true
	if err := runReconcile(&cobra.Command{}, nil); err != nil {
		t.Fatalf("Expected the run to complete, got %v", err)
	}

	csvOut, err := os.ReadFile(outputFile)
	if err != nil {
		t.Fatalf("Expected the summaries file, got %v", err)
	}
	if !strings.HasPrefix(string(csvOut), "rsx_id,account_id,account_name") {
		t.Errorf("Unexpected summaries header: %.80s", csvOut)
	}

	pdf, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatalf("Expected the PDF report, got %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("Expected a PDF document, got %.8s", pdf)
	}
}
