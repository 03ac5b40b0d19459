// Package input reads batch input files (CSV or XLSX) into queries and
// profiles. Columns are matched by header name.
package input

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/model"
)

// Column names recognized in the header row, with accepted aliases.
var headerAliases = map[string][]string{
	"first_name": {"first_name", "firstname", "first", "given_name"},
	"last_name":  {"last_name", "lastname", "last", "surname", "family_name"},
	"city":       {"city", "town"},
	"state":      {"state", "st", "region"},
	"employment": {"employment", "employer", "company", "job"},
	"education":  {"education", "school", "university"},
}

// columns maps canonical column names to their index in a row.
type columns map[string]int

// mapHeader resolves the header row. first_name and last_name are required.
func mapHeader(header []string) (columns, error) {
	cols := make(columns)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
		for canon, aliases := range headerAliases {
			if _, seen := cols[canon]; seen {
				continue
			}
			for _, a := range aliases {
				if h == a {
					cols[canon] = i
				}
			}
		}
	}
	var missing []string
	for _, req := range []string{"first_name", "last_name"} {
		if _, ok := cols[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("input: header missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// toInput converts one data row. ok is false for blank rows.
func (c columns) toInput(row []string) (model.Input, bool) {
	q := model.NewPersonQuery(
		c.get(row, "first_name"),
		c.get(row, "last_name"),
		c.get(row, "city"),
		c.get(row, "state"),
	)
	if q.FirstName == "" && q.LastName == "" && !q.HasLocation() {
		return model.Input{}, false
	}
	return model.Input{
		Query: q,
		Profile: model.PersonProfile{
			Employment: c.get(row, "employment"),
			Education:  c.get(row, "education"),
			City:       q.City,
			State:      q.State,
		},
	}, true
}

// fromRows maps a header and its data rows to inputs, dropping blank rows
// and repeated queries.
func fromRows(header []string, rows [][]string) ([]model.Input, error) {
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	out := make([]model.Input, 0, len(rows))
	for n, row := range rows {
		in, ok := cols.toInput(row)
		if !ok {
			continue
		}
		key := in.Query.Key()
		if seen[key] {
			zap.L().Debug("input: duplicate row skipped", zap.Int("row", n+2), zap.String("record", key))
			continue
		}
		seen[key] = true
		out = append(out, in)
	}
	return out, nil
}

// ReadFile reads a CSV or XLSX file chosen by extension.
func ReadFile(ctx context.Context, path string) ([]model.Input, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, "")
	case ".csv", ".txt", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "input: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	default:
		return nil, eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
}
