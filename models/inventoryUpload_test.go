package models_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dlvery/dlvery_backend/models"
	"github.com/xuri/excelize/v2"
)

func TestParseFlexibleDate(t *testing.T) {
	inputs := []string{
		"2026-12-31",
		"31-12-2026",
		"12/31/2026",
		"31/12/2026",
		"2026/12/31",
		"31.12.2026",
		"2026.12.31",
	}
	for _, input := range inputs {
		date, err := models.ParseFlexibleDate(input)
		if err != nil {
			t.Errorf("%q: %v", input, err)
			continue
		}
		if date.String() != "2026-12-31" {
			t.Errorf("%q parsed to %s", input, date)
		}
	}

	if _, err := models.ParseFlexibleDate("31st December 2026"); err == nil {
		t.Error("freeform date should fail")
	}
	if _, err := models.ParseFlexibleDate(""); err == nil {
		t.Error("empty date should fail")
	}
}

func TestGenerateCsvTemplate(t *testing.T) {
	csv := models.GenerateCsvTemplate()
	lines := strings.Split(strings.TrimSpace(csv), "\n")

	if lines[0] != "name,description,category,quantity,unitPrice,isDamaged,isPerishable,expiryDate" {
		t.Fatalf("header = %q", lines[0])
	}
	// One sample row per category.
	if len(lines)-1 != len(models.AllProductCategories()) {
		t.Fatalf("rows = %d, want %d", len(lines)-1, len(models.AllProductCategories()))
	}
	// Perishable categories carry an expiry date sample.
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if len(fields) != 8 {
			t.Fatalf("row %q has %d fields", line, len(fields))
		}
		perishable := fields[6] == "true"
		hasExpiry := fields[7] != ""
		if perishable != hasExpiry {
			t.Errorf("row %q: perishable=%v but expiry=%q", line, perishable, fields[7])
		}
	}
}

func TestGenerateXlsxTemplateRoundTrip(t *testing.T) {
	payload, err := models.GenerateXlsxTemplate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open generated workbook: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet != "Inventory Template" {
		t.Fatalf("sheet = %q", sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != len(models.AllProductCategories())+1 {
		t.Fatalf("rows = %d, want header plus %d samples", len(rows), len(models.AllProductCategories()))
	}
	if rows[0][0] != "name" || rows[0][7] != "expiryDate" {
		t.Fatalf("header row = %v", rows[0])
	}

	// Every data row must survive the upload parser unchanged. Trailing
	// empty cells are trimmed by GetRows.
	for i, row := range rows[1:] {
		expiry := ""
		if len(row) > 7 {
			expiry = row[7]
		}
		if expiry == "" {
			continue
		}
		if _, err := models.ParseFlexibleDate(expiry); err != nil {
			t.Errorf("row %d: template expiry %q not parseable: %v", i+2, expiry, err)
		}
	}
}
