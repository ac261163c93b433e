// Package rowfmt renders row cursors as JSON arrays or Markdown tables,
// truncating long values.
package rowfmt

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Row keeps column order for JSON output.
type Row = orderedmap.OrderedMap[string, any]

// Formatter renders rows with every value cut to MaxLen characters.
type Formatter struct {
	MaxLen int
}

func New(maxLen int) Formatter {
	return Formatter{MaxLen: maxLen}
}

// Truncate cuts s to at most MaxLen runes. No ellipsis is added.
func (f Formatter) Truncate(s string) string {
	if f.MaxLen <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == f.MaxLen {
			return s[:i]
		}
		n++
	}
	return s
}

// Collect reads up to limit rows (all rows when limit <= 0). Values are
// stringified and truncated; NULL stays nil. Rows past the limit are never
// read.
func (f Formatter) Collect(rows *sql.Rows, limit int) ([]string, []*Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get columns: %w", err)
	}

	out := []*Row{}
	for (limit <= 0 || len(out) < limit) && rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row %d: %w", len(out)+1, err)
		}

		row := orderedmap.New[string, any](len(columns))
		for i, col := range columns {
			if values[i] == nil {
				row.Set(col, nil)
				continue
			}
			row.Set(col, f.Truncate(stringify(values[i])))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return columns, out, nil
}

// JSON renders the rows as a JSON array of objects keyed by column name.
func (f Formatter) JSON(rows *sql.Rows, limit int) (string, error) {
	_, collected, err := f.Collect(rows, limit)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(collected)
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	return string(data), nil
}

// cellEscaper keeps a value inside its table cell.
var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// Markdown renders a header row, a separator row and one row per record.
// NULL renders as an empty cell. Pipes and line breaks in headers and
// values are escaped.
func (f Formatter) Markdown(rows *sql.Rows, limit int) (string, error) {
	columns, collected, err := f.Collect(rows, limit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = cellEscaper.Replace(col)
	}
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	seps := make([]string, len(columns))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	cells := make([]string, len(columns))
	for _, row := range collected {
		for i, col := range columns {
			v, _ := row.Get(col)
			if s, ok := v.(string); ok {
				cells[i] = cellEscaper.Replace(s)
			} else {
				cells[i] = ""
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String(), nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
