package layout

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"firestige.xyz/groundview/internal/core"
)

const (
	minColumns     = 5
	maxEnumLabels  = 4
	commentMarker  = '#'
	enumFirstIndex = 5
)

// ReadRows parses a comma separated definition:
//
//	description, offset, size, format, display[, label1, label2, label3, label4]
//
// Lines whose first column starts with '#' are comments.
func ReadRows(r io.Reader, source string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = false

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			return nil, &core.DefinitionError{Source: source, Line: line, Reason: err.Error()}
		}
		line, _ := reader.FieldPos(0)
		if isComment(record) {
			continue
		}

		row, err := parseRecord(record)
		if err != nil {
			return nil, &core.DefinitionError{Source: source, Line: line, Reason: err.Error()}
		}
		row.Line = line
		rows = append(rows, row)
	}

	return rows, nil
}

func isComment(record []string) bool {
	if len(record) == 0 {
		return true
	}
	first := strings.TrimSpace(record[0])
	if first == "" && len(record) == 1 {
		return true
	}
	return first != "" && first[0] == commentMarker
}

func parseRecord(record []string) (Row, error) {
	if len(record) < minColumns {
		return Row{}, fmt.Errorf("expected at least %d columns, got %d", minColumns, len(record))
	}

	offset, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return Row{}, fmt.Errorf("invalid offset %q", record[1])
	}
	size, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return Row{}, fmt.Errorf("invalid size %q", record[2])
	}

	row := Row{
		Description: strings.TrimSpace(record[0]),
		Offset:      offset,
		Size:        size,
		Format:      strings.TrimSpace(record[3]),
		Display:     strings.TrimSpace(record[4]),
	}

	if row.Display == "Enm" {
		end := min(len(record), enumFirstIndex+maxEnumLabels)
		labels := append([]string(nil), record[enumFirstIndex:end]...)
		// Trailing empty columns are padding, not labels.
		for len(labels) > 0 && strings.TrimSpace(labels[len(labels)-1]) == "" {
			labels = labels[:len(labels)-1]
		}
		row.Enum = labels
	}

	return row, nil
}

// Load reads a definition file and builds its layout. Files ending in
// .yaml or .yml are YAML definitions; anything else is read as rows.
func Load(path string, opts ...Option) (*PacketLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition %s: %w", path, err)
	}
	defer f.Close()

	opts = append([]Option{WithSource(filepath.Base(path))}, opts...)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f, opts...)
	default:
		rows, err := ReadRows(f, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		return Build(rows, opts...)
	}
}
