package pipeline

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

// sheetNameMaxLen is the spreadsheet format's sheet name cap.
const sheetNameMaxLen = 31

// ExportXLSX writes the comparison workbook: one sheet per product, a
// header row with Question followed by the sorted categories, and one
// row per question sorted by question text. Layout is deterministic for
// identical input.
func ExportXLSX(extractions []model.Extraction, cfg *model.QuestionConfig, path string) error {
	if len(extractions) == 0 {
		return eris.Wrap(model.ErrExport, "export: no extracted data")
	}
	if cfg == nil || cfg.Empty() {
		return eris.Wrap(model.ErrExport, "export: question config is empty")
	}

	categories := make([]string, len(cfg.Categories))
	copy(categories, cfg.Categories)
	sort.Strings(categories)

	questions := make([]model.Question, len(cfg.Questions))
	copy(questions, cfg.Questions)
	sort.Slice(questions, func(i, j int) bool { return questions[i].Text < questions[j].Text })

	// Answer lookup per product.
	type cell struct{ question, category string }
	answers := make(map[string]map[cell]string)
	var products []string
	for _, e := range extractions {
		if _, ok := answers[e.ProductName]; !ok {
			answers[e.ProductName] = make(map[cell]string)
			products = append(products, e.ProductName)
		}
		answers[e.ProductName][cell{e.QuestionID, e.Category}] = e.Answer
	}
	sort.Strings(products)

	f := xlsx.NewFile()
	usedNames := make(map[string]bool)
	for _, product := range products {
		sheet, err := f.AddSheet(uniqueSheetName(product, usedNames))
		if err != nil {
			return eris.Wrap(model.ErrExport, eris.Wrapf(err, "export: add sheet for %s", product).Error())
		}

		header := sheet.AddRow()
		header.AddCell().SetString("Question")
		for _, category := range categories {
			header.AddCell().SetString(category)
		}

		for _, q := range questions {
			row := sheet.AddRow()
			row.AddCell().SetString(q.Text)
			for _, category := range categories {
				value := ""
				if q.AppliesToCategory(category) {
					value = answers[product][cell{q.ID, category}]
				}
				row.AddCell().SetString(value)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(model.ErrExport, eris.Wrapf(err, "export: save %s", path).Error())
	}

	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("products", len(products)),
		zap.Int("questions", len(questions)),
	)

	return nil
}

// uniqueSheetName sanitizes a product name into a valid, unique sheet
// name capped at 31 chars.
func uniqueSheetName(name string, used map[string]bool) string {
	sanitized := SanitizeSheetName(name)
	candidate := sanitized
	for i := 2; used[candidate]; i++ {
		suffix := "_" + strconv.Itoa(i)
		base := sanitized
		if len(base)+len(suffix) > sheetNameMaxLen {
			base = base[:sheetNameMaxLen-len(suffix)]
		}
		candidate = base + suffix
	}
	used[candidate] = true
	return candidate
}

// SanitizeSheetName strips characters the spreadsheet format forbids and
// truncates to the 31-char cap.
func SanitizeSheetName(name string) string {
	replacer := strings.NewReplacer(
		"[", "", "]", "", "*", "", "?", "", ":", "", "/", "", "\\", "",
	)
	sanitized := strings.TrimSpace(replacer.Replace(name))
	if sanitized == "" {
		sanitized = "Product"
	}
	if len(sanitized) > sheetNameMaxLen {
		sanitized = strings.TrimSpace(sanitized[:sheetNameMaxLen])
	}
	return sanitized
}
