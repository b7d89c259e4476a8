package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInvoiceMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_invoices.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no invoice migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS invoices",
		"FOREIGN KEY (subscription_id) REFERENCES subscriptions(id) ON DELETE RESTRICT",
		"CHECK (status IN ('pending', 'paid', 'overdue', 'cancelled'))",
		"idx_invoices_tenant_number ON invoices (tenant_id, number)",
		"idx_invoices_pix_txid",
		"DROP TABLE IF EXISTS invoices",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSequenceMigrationHasUniqueBucket(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_invoice_sequences.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no invoice sequence migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}

	if !strings.Contains(string(data), "idx_invoice_sequences_tenant_month ON invoice_sequences (tenant_id, year_month)") {
		t.Errorf("missing unique tenant+year_month index")
	}
}
