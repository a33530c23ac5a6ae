package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/local/aibatch/internal/progress"
)

// Row is one unit of work: the stable 0-based position in the input file
// plus the payload columns. ID is the join key between input, progress
// and output.
type Row struct {
	ID        int
	Prompt    string
	ImagePath string
}

// Table holds the loaded input CSV.
type Table struct {
	Header    []string
	Records   [][]string
	promptIdx int
	imageIdx  int // -1 when no image column
}

// Load reads the input CSV and locates the prompt and optional image
// columns. Row IDs are assigned by position and are stable across runs of
// the same file.
func Load(path, promptCol, imageCol string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows, validated per column below

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	t := &Table{Header: header, promptIdx: -1, imageIdx: -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case promptCol:
			t.promptIdx = i
		case imageCol:
			if imageCol != "" {
				t.imageIdx = i
			}
		}
	}
	if t.promptIdx < 0 {
		return nil, fmt.Errorf("input %s has no column %q", path, promptCol)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d of %s: %w", len(t.Records)+2, path, err)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func (t *Table) Len() int { return len(t.Records) }

// Rows returns the work units in input order.
func (t *Table) Rows() []Row {
	rows := make([]Row, 0, len(t.Records))
	for i, rec := range t.Records {
		row := Row{ID: i}
		if t.promptIdx < len(rec) {
			row.Prompt = rec[t.promptIdx]
		}
		if t.imageIdx >= 0 && t.imageIdx < len(rec) {
			row.ImagePath = strings.TrimSpace(rec[t.imageIdx])
		}
		rows = append(rows, row)
	}
	return rows
}

var columnSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ReasoningColumn and ClassificationColumn derive the output column names
// from the active model, e.g. reasoning_gpt_4o.
func ReasoningColumn(model string) string {
	return "reasoning_" + columnSanitizer.ReplaceAllString(model, "_")
}

func ClassificationColumn(model string) string {
	return "classification_" + columnSanitizer.ReplaceAllString(model, "_")
}

// Merge produces the output header and records: the input table plus the
// two model columns, filled only for rows recorded done. Output row order
// is input row order regardless of completion order.
func (t *Table) Merge(statuses map[int]progress.RowStatus, model string) ([]string, [][]string) {
	reasonCol := ReasoningColumn(model)
	classCol := ClassificationColumn(model)

	// reuse columns left behind by a previous in-place run
	reasonIdx, classIdx := -1, -1
	header := append([]string(nil), t.Header...)
	for i, name := range header {
		switch name {
		case reasonCol:
			reasonIdx = i
		case classCol:
			classIdx = i
		}
	}
	if reasonIdx < 0 {
		reasonIdx = len(header)
		header = append(header, reasonCol)
	}
	if classIdx < 0 {
		classIdx = len(header)
		header = append(header, classCol)
	}

	width := len(header)
	out := make([][]string, 0, len(t.Records))
	for i, rec := range t.Records {
		row := make([]string, width)
		copy(row, rec)
		if st, ok := statuses[i]; ok && st.State == progress.StateDone {
			row[reasonIdx] = st.Reasoning
			row[classIdx] = st.Classification
		} else {
			row[reasonIdx] = ""
			row[classIdx] = ""
		}
		out = append(out, row)
	}
	return header, out
}

// WriteMerged writes the merged table to path via a temp file + rename so
// the source is never truncated by a failure mid-write.
func WriteMerged(path string, t *Table, statuses map[int]progress.RowStatus, model string) error {
	header, records := t.Merge(statuses, model)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".output-*.csv")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(header)
	if writeErr == nil {
		writeErr = w.WriteAll(records)
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write output %s: %w", path, writeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename output into place: %w", err)
	}
	return nil
}
