package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testRow struct {
	ID        int       `csv:"id"`
	Name      string    `csv:"name"`
	Value     float64   `csv:"value"`
	Active    bool      `csv:"active"`
	CreatedAt time.Time `csv:"created_at"`
	Pointer   *string   `csv:"pointer"`
	Hidden    string    `csv:"-"`
	Untagged  uint
}

func stringPtr(s string) *string { return &s }

func sampleRows() []testRow {
	return []testRow{
		{ID: 1, Name: "Test1", Value: 10.5, Active: true, CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), Pointer: stringPtr("x"), Hidden: "h", Untagged: 7},
		{ID: 2, Name: "Test, 2", Value: 20.25, CreatedAt: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)},
	}
}

func TestExportToWriter_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportToWriter(&buf, FormatCSV, sampleRows(), false); err != nil {
		t.Fatalf("ExportToWriter failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	header := strings.Join(records[0], ",")
	if header != "id,name,value,active,created_at,pointer,Untagged" {
		t.Errorf("Unexpected header: %s", header)
	}
	if got := strings.Join(records[1], "|"); got != "1|Test1|10.5000|true|2024-01-01T12:00:00Z|x|7" {
		t.Errorf("Unexpected first row: %s", got)
	}
	if records[2][1] != "Test, 2" {
		t.Errorf("Expected quoted name to round trip, got %q", records[2][1])
	}
	if records[2][5] != "" {
		t.Errorf("Expected nil pointer to be empty, got %q", records[2][5])
	}
}

func TestExportToWriter_CSVEmptySliceWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportToWriter(&buf, FormatCSV, []testRow{}, false); err != nil {
		t.Fatalf("ExportToWriter failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "id,name") {
		t.Errorf("Expected header only, got %q", buf.String())
	}
}

func TestExportToWriter_CSVRejectsNonSlices(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportToWriter(&buf, FormatCSV, testRow{}, false); err == nil {
		t.Error("Expected error for a struct value")
	}
	if err := ExportToWriter(&buf, FormatCSV, []int{1, 2}, false); err == nil {
		t.Error("Expected error for a slice of ints")
	}
}

func TestExportToWriter_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportToWriter(&buf, Format("xml"), sampleRows(), false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestExporter_JSONFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "nested", "rows.json")

	exporter := NewExporter(Options{Format: FormatJSON, FilePath: filePath, PrettyJSON: true})
	if err := exporter.Export(sampleRows()); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read export file: %v", err)
	}
	var decoded []testRow
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Name != "Test, 2" {
		t.Errorf("Unexpected decoded rows: %+v", decoded)
	}
	if !strings.Contains(string(content), "\n  ") {
		t.Error("Expected indented JSON")
	}
}

func TestExporter_Overwrite(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(filePath, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := NewExporter(Options{Format: FormatCSV, FilePath: filePath}).Export(sampleRows())
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected already exists error, got %v", err)
	}

	err = NewExporter(Options{Format: FormatCSV, FilePath: filePath, Overwrite: true}).Export(sampleRows())
	if err != nil {
		t.Fatalf("Export with overwrite failed: %v", err)
	}
	content, _ := os.ReadFile(filePath)
	if !strings.HasPrefix(string(content), "id,") {
		t.Errorf("Expected file to be replaced, got %q", content)
	}
}

func TestExporter_UnsupportedFormatCreatesNoFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "rows.xml")
	if err := NewExporter(Options{Format: "xml", FilePath: filePath}).Export(sampleRows()); err == nil {
		t.Fatal("Expected error for unsupported format")
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("Expected no file to be created")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{".JSON", FormatJSON, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateFilename(t *testing.T) {
	name := GenerateFilename("simulation_PLAYER", FormatCSV)
	if !strings.HasPrefix(name, "simulation_PLAYER_") || !strings.HasSuffix(name, ".csv") {
		t.Errorf("Unexpected filename: %s", name)
	}
}
