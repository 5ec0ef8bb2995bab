package writer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/xuri/excelize/v2"

	"b3crawl/internal/types"
)

// Header is the column layout of a persisted dataset
var Header = []string{"Razao Social", "Nome Pregao", "Inicial", "Link", "Code"}

const sheetName = "Companies"

// FileWriter persists datasets into a timestamp-named file
type FileWriter struct {
	outputDir string
	format    string
	logger    *log.Logger
	now       func() time.Time
}

// New creates a FileWriter. The directory is validated when writing, not here.
func New(outputDir, format string, logger *log.Logger) *FileWriter {
	if format == "" {
		format = "csv"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FileWriter{
		outputDir: outputDir,
		format:    strings.ToLower(format),
		logger:    logger,
		now:       time.Now,
	}
}

// TimestampName concatenates the date and time fields without padding or separators.
// Two runs finishing within the same second get the same name.
func TimestampName(t time.Time) string {
	return fmt.Sprintf("%d%d%d%d%d%d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Dir returns the configured output directory, or the working directory when it is not usable
func (w *FileWriter) Dir() string {
	if w.outputDir == "" {
		return ""
	}
	info, err := os.Stat(w.outputDir)
	if err != nil || !info.IsDir() {
		w.logger.Warn("output path is not a valid directory, writing to working directory", "path", w.outputDir)
		return ""
	}
	return w.outputDir
}

// WriteDataset writes d and returns the path of the file created
func (w *FileWriter) WriteDataset(d *types.Dataset) (string, error) {
	path := filepath.Join(w.Dir(), TimestampName(w.now())+"."+w.format)

	var err error
	switch w.format {
	case "xlsx":
		err = writeXLSX(path, d)
	case "csv":
		err = writeCSVFile(path, d)
	default:
		err = fmt.Errorf("unsupported format %q", w.format)
	}
	if err != nil {
		return "", fmt.Errorf("write dataset: %w", err)
	}

	w.logger.Info("dataset saved", "path", path, "companies", d.Len())
	return path, nil
}

func row(r *types.CompanyRecord) []string {
	return []string{
		r.CorporateName,
		r.TradingName,
		r.StartingLetter,
		strings.Join(r.Links(), types.LinkSeparator),
		r.Code,
	}
}

// WriteCSV writes the header and one row per record
func WriteCSV(out io.Writer, d *types.Dataset) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range d.Records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVFile(path string, d *types.Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteCSV(file, d); err != nil {
		return err
	}
	return file.Close()
}

func writeXLSX(path string, d *types.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	rows := make([][]string, 0, d.Len()+1)
	rows = append(rows, Header)
	for _, r := range d.Records {
		rows = append(rows, row(r))
	}

	for i, cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

// LoadCSV reads a dataset previously written by WriteDataset. Columns are
// matched by header name, so extra columns such as an index are ignored.
func LoadCSV(path string) (*types.Dataset, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file %s not found: %w", path, err)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadCSV(file)
}

// ReadCSV parses a dataset from CSV
func ReadCSV(in io.Reader) (*types.Dataset, error) {
	reader := csv.NewReader(in)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	d := &types.Dataset{}
	if len(records) == 0 {
		return d, nil
	}

	cols := make(map[string]int)
	for i, h := range records[0] {
		cols[strings.TrimSpace(h)] = i
	}
	for _, h := range Header[:4] {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("parse csv: missing column %q", h)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	for line, rec := range records[1:] {
		links := strings.Split(get(rec, "Link"), strings.TrimSpace(types.LinkSeparator))
		overview := strings.TrimSpace(links[0])
		summary := ""
		if len(links) > 1 {
			summary = strings.TrimSpace(links[1])
		}

		r, err := types.NewCompanyRecord(get(rec, "Razao Social"), get(rec, "Nome Pregao"), get(rec, "Inicial"), overview, summary)
		if err != nil {
			return nil, fmt.Errorf("parse csv line %d: %w", line+2, err)
		}
		r.SetCodes(strings.Split(get(rec, "Code"), types.CodeSeparator))
		d.Append(r)
	}

	return d, nil
}
