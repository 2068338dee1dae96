package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/smith3v/wortschatz/pkg/logger"
	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errEmptyCatalog = errors.New("vocabulary catalog is empty")

var requiredColumns = []string{"level", "word"}

// LoadFile reads a catalog from a .csv or .xlsx file.
func LoadFile(path string) (*Catalog, error) {
	var (
		words []Word
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		words, err = loadCSVFile(path)
	case ".xlsx":
		words, err = loadXLSXFile(path)
	default:
		return nil, fmt.Errorf("unsupported catalog file %q: expected .csv or .xlsx", path)
	}
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, errEmptyCatalog
	}

	c := New(words)
	logger.Info("vocabulary catalog loaded", "path", path, "words", c.Len())
	return c, nil
}

func loadCSVFile(path string) ([]Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads catalog rows with a header line. Column names are matched
// case-insensitively; level and word are required.
func ParseCSV(reader io.Reader) ([]Word, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyCatalog
		}
		return nil, err
	}
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, err
	}
	return parseRows(header, records)
}

func loadXLSXFile(path string) ([]Word, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, errEmptyCatalog
	}
	return parseRows(rows[0], rows[1:])
}

func parseRows(header []string, records [][]string) ([]Word, error) {
	indexByColumn := make(map[string]int, len(header))
	for idx, name := range header {
		indexByColumn[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	missing := make([]string, 0)
	for _, col := range requiredColumns {
		if _, ok := indexByColumn[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("missing required catalog columns: %s", strings.Join(missing, ", "))
	}

	column := func(record []string, name string) string {
		idx, ok := indexByColumn[name]
		if !ok {
			return ""
		}
		return cellValue(record, idx)
	}

	words := make([]Word, 0, len(records))
	for _, record := range records {
		w := Word{
			ID:      column(record, "id"),
			Level:   column(record, "level"),
			Topic:   column(record, "topic"),
			Word:    column(record, "word"),
			Article: column(record, "article"),
			Meaning: column(record, "meaning"),
			Example: column(record, "example"),
		}
		if w.Word == "" {
			continue
		}
		if w.ID == "" {
			w.ID = wordKey(w.Article, w.Word)
		}
		words = append(words, w)
	}
	return words, nil
}

func cellValue(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// wordKey derives an id such as "der-apfel" for rows without one.
func wordKey(article, word string) string {
	fields := strings.Fields(strings.ToLower(article + " " + word))
	return strings.Join(fields, "-")
}
