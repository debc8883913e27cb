package models

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Upload column layout, matching the downloadable templates.
// name, description, category, quantity, unitPrice, isDamaged, isPerishable, expiryDate
var uploadHeaders = []string{"name", "description", "category", "quantity", "unitPrice", "isDamaged", "isPerishable", "expiryDate"}

var uploadDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
	"2006.01.02",
}

// ParseFlexibleDate accepts the date formats spreadsheets commonly emit.
func ParseFlexibleDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	for _, layout := range uploadDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return Date(parsed), nil
		}
	}
	return Date{}, fmt.Errorf("unable to parse date: %s", value)
}

func parseProductRow(row []string, rowNumber int) (*NewProduct, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	if len(row) < 5 {
		return nil, fmt.Errorf("row %d: insufficient columns, expected at least 5 (%s)", rowNumber, strings.Join(uploadHeaders[:5], ","))
	}

	name := cell(0)
	if name == "" {
		return nil, fmt.Errorf("row %d: product name cannot be empty", rowNumber)
	}

	categoryStr := strings.ReplaceAll(strings.ToUpper(cell(2)), " ", "_")
	category := ProductCategory(categoryStr)
	if !category.IsValid() {
		return nil, fmt.Errorf("row %d: invalid category %q", rowNumber, cell(2))
	}

	quantity, err := strconv.Atoi(cell(3))
	if err != nil || quantity < 0 {
		return nil, fmt.Errorf("row %d: invalid quantity, must be a non-negative number", rowNumber)
	}

	unitPrice, err := utils.ParseDecimal(cell(4))
	if err != nil || unitPrice.LessThan(decimal.Zero) {
		return nil, fmt.Errorf("row %d: invalid unit price", rowNumber)
	}

	input := &NewProduct{
		Name:        name,
		Description: cell(1),
		Category:    category,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}

	if raw := cell(5); raw != "" {
		damaged, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid isDamaged value %q", rowNumber, raw)
		}
		input.IsDamaged = &damaged
	}
	if raw := cell(6); raw != "" {
		perishable, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid isPerishable value %q", rowNumber, raw)
		}
		input.IsPerishable = &perishable
	}
	if raw := cell(7); raw != "" {
		expiry, err := ParseFlexibleDate(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %v", rowNumber, err)
		}
		input.ExpiryDate = &expiry
	}

	return input, nil
}

// ImportProductsFromXlsx parses an uploaded workbook and creates one
// product per data row. Failing rows are counted and skipped, they never
// abort the rest of the file.
func ImportProductsFromXlsx(ctx context.Context, filename string, file io.Reader) (string, error) {
	if !strings.HasSuffix(filename, ".xlsx") {
		return "", utils.ValidationError("invalid file type: only .xlsx files are allowed")
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		return "", utils.ValidationError("unable to open Excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", utils.ValidationError("unable to read sheet: %v", err)
	}
	if len(rows) <= 1 {
		return "", utils.ValidationError("no valid products found in the XLSX file")
	}

	successCount := 0
	errorCount := 0
	for idx, row := range rows[1:] {
		rowNumber := idx + 2

		empty := true
		for _, value := range row {
			if strings.TrimSpace(value) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		input, err := parseProductRow(row, rowNumber)
		if err != nil {
			errorCount++
			config.LogError(config.GetLogger(), "inventoryUpload", "ImportProductsFromXlsx", "parse row", rowNumber, err)
			continue
		}
		if _, err := CreateProduct(ctx, input); err != nil {
			errorCount++
			config.LogError(config.GetLogger(), "inventoryUpload", "ImportProductsFromXlsx", "create product", input.Name, err)
			continue
		}
		successCount++
	}

	return fmt.Sprintf("File processed successfully. %d products created, %d errors.", successCount, errorCount), nil
}

type sampleProduct struct {
	Name         string
	Description  string
	Category     ProductCategory
	Quantity     int
	UnitPrice    float64
	IsPerishable bool
	ExpiryDate   string
}

func sampleProducts() []sampleProduct {
	names := map[ProductCategory][2]string{
		CategoryElectronics:    {"Smartphone", "Latest model smartphone"},
		CategoryClothing:       {"Cotton T-Shirt", "100% cotton t-shirt"},
		CategoryFoodBeverages:  {"Energy Drink", "Natural energy drink"},
		CategoryHomeGarden:     {"Coffee Maker", "Automatic coffee maker"},
		CategoryBooks:          {"Programming Guide", "Learn programming basics"},
		CategoryToysGames:      {"Building Blocks", "Educational toy blocks"},
		CategoryHealthBeauty:   {"Vitamin C", "Health supplement"},
		CategorySportsOutdoors: {"Tennis Ball", "Professional tennis ball"},
		CategoryAutomotive:     {"Car Oil", "Engine oil"},
		CategoryOfficeSupplies: {"Notebook", "Office notebook"},
		CategoryPharmaceutical: {"Pain Relief", "Over-the-counter medicine"},
		CategoryFrozenGoods:    {"Ice Cream", "Vanilla ice cream"},
		CategoryFreshProduce:   {"Organic Apples", "Fresh organic apples"},
		CategoryOther:          {"Gift Card", "Store gift card"},
	}
	perishable := map[ProductCategory]bool{
		CategoryFreshProduce:   true,
		CategoryFrozenGoods:    true,
		CategoryPharmaceutical: true,
		CategoryFoodBeverages:  true,
	}

	samples := make([]sampleProduct, 0, len(names))
	counter := 1
	for _, category := range AllProductCategories() {
		pair := names[category]
		sample := sampleProduct{
			Name:         pair[0],
			Description:  pair[1],
			Category:     category,
			Quantity:     50 + counter*10,
			UnitPrice:    10.0 + float64(counter)*5.5,
			IsPerishable: perishable[category],
		}
		if sample.IsPerishable {
			// Vary the date formats so the template doubles as format docs.
			switch counter % 3 {
			case 0:
				sample.ExpiryDate = "31-12-2024"
			case 1:
				sample.ExpiryDate = "12/31/2024"
			default:
				sample.ExpiryDate = "2024-12-31"
			}
		}
		samples = append(samples, sample)
		counter++
	}
	return samples
}

func GenerateCsvTemplate() string {
	var b strings.Builder
	b.WriteString(strings.Join(uploadHeaders, ","))
	b.WriteString("\n")

	for _, sample := range sampleProducts() {
		b.WriteString(fmt.Sprintf("%s,%s,%s,%d,%.2f,%t,%t,%s\n",
			sample.Name, sample.Description, sample.Category,
			sample.Quantity, sample.UnitPrice, false,
			sample.IsPerishable, sample.ExpiryDate))
	}
	return b.String()
}

func GenerateXlsxTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Inventory Template"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, header := range uploadHeaders {
		cellRef, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cellRef, header)
		f.SetCellStyle(sheet, cellRef, cellRef, headerStyle)
	}

	for rowIdx, sample := range sampleProducts() {
		values := []interface{}{
			sample.Name, sample.Description, string(sample.Category),
			sample.Quantity, sample.UnitPrice, false,
			sample.IsPerishable, sample.ExpiryDate,
		}
		for colIdx, value := range values {
			cellRef, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheet, cellRef, value)
		}
	}

	f.SetColWidth(sheet, "A", "H", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
