package cmd

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
)

func TestAuditListsEvents(t *testing.T) {
	dir := setupTest(t)

	res := mustRun(t, "", "audit")
	if !strings.Contains(res.stdout, "No audit log entries yet") {
		t.Errorf("empty log output = %q", res.stdout)
	}

	mustRun(t, "API_KEY=hunter2", "import", "-p", "dev")
	mustRun(t, "", "unset", "API_KEY", "-p", "dev")

	res = mustRun(t, "", "audit")
	for _, want := range []string{"Imported into dev: API_KEY", "Removed API_KEY from dev"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("audit output missing %q:\n%s", want, res.stdout)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, audit.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Error("audit log must not contain secret values")
	}
}

func TestAuditLimit(t *testing.T) {
	setupTest(t)
	for _, v := range []string{"A=1", "B=2", "C=3"} {
		mustRun(t, v, "import", "-p", "dev")
	}

	res := mustRun(t, "", "audit", "-n", "1")
	if !strings.Contains(res.stdout, "Audit log (1 entries)") {
		t.Errorf("missing heading: %q", res.stdout)
	}
	if strings.Count(res.stdout, "Imported into") != 1 || !strings.Contains(res.stdout, ": C") {
		t.Errorf("limited output = %q", res.stdout)
	}
}

func TestAuditExport(t *testing.T) {
	setupTest(t)
	mustRun(t, "A=1\nB=2", "import", "-p", "dev")
	res := runCmd(t, "", "unset", "NOPE", "-p", "dev")
	if res.err == nil {
		t.Fatal("expected unset of a missing secret to fail")
	}

	out := t.TempDir()

	jsonPath := filepath.Join(out, "audit.json")
	mustRun(t, "", "audit", "export", "--format", "json", "-o", jsonPath)
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var entries []audit.AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("invalid JSON export: %v", err)
	}
	if len(entries) == 0 || entries[0].Event != audit.EventImport {
		t.Fatalf("entries = %+v", entries)
	}
	if diff := cmp.Diff([]string{"A", "B"}, entries[0].Names); diff != "" {
		t.Errorf("imported names (-want +got):\n%s", diff)
	}

	csvPath := filepath.Join(out, "audit.csv")
	mustRun(t, "", "audit", "export", "-o", csvPath)
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV export: %v", err)
	}
	wantHeader := []string{"timestamp", "event", "status", "profile", "backend", "names", "error"}
	if diff := cmp.Diff(wantHeader, records[0]); diff != "" {
		t.Errorf("CSV header (-want +got):\n%s", diff)
	}
	if len(records) != len(entries)+1 {
		t.Errorf("CSV has %d records, JSON has %d entries", len(records)-1, len(entries))
	}
	if records[1][5] != "A B" {
		t.Errorf("names column = %q", records[1][5])
	}
}

func TestAuditExportErrors(t *testing.T) {
	setupTest(t)

	res := runCmd(t, "", "audit", "export")
	if !witherrors.IsType(res.err, witherrors.ValidationError) {
		t.Errorf("missing output: error = %v", res.err)
	}

	res = runCmd(t, "", "audit", "export", "-f", "xml", "-o", filepath.Join(t.TempDir(), "a.xml"))
	if !witherrors.IsType(res.err, witherrors.ValidationError) {
		t.Errorf("bad format: error = %v", res.err)
	}
}
