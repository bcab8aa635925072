// Package recipients turns a bulk-upload CSV into validated email entries.
//
// The input must have a header row naming at least the name, email and
// client_email columns (case-insensitive, any order, extra columns ignored)
// and at least one data row. Rows where all three required fields are empty
// are skipped. Emails are lowercased.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Required column names.
const (
	ColumnName        = "name"
	ColumnEmail       = "email"
	ColumnClientEmail = "client_email"
)

var requiredColumns = []string{ColumnName, ColumnEmail, ColumnClientEmail}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	ErrNoRows        = errors.New("recipients: csv must contain a header row and at least one data row")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrMissingColumn = errors.New("recipients: missing required columns")
)

// Entry is one validated recipient row. The JSON shape matches the
// email-entries endpoint.
type Entry struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	ClientEmail string `json:"client_email"`
}

// RowError reports a problem with a single data row. Row is the position
// among non-blank lines counting the header as row 1.
type RowError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	if errors.Is(e.Err, ErrInvalidEmail) {
		return fmt.Sprintf("row %d: invalid %s format: %s", e.Row, e.Field, e.Value)
	}
	return fmt.Sprintf("row %d: %v (%s)", e.Row, e.Err, strings.Join(requiredColumns, ", "))
}

func (e *RowError) Unwrap() error { return e.Err }

// ColumnError lists the required columns the header lacks.
type ColumnError struct {
	Missing []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingColumn, strings.Join(e.Missing, ", "))
}

func (e *ColumnError) Unwrap() error { return ErrMissingColumn }

// Parse reads and validates every row. It stops at the first invalid row.
func Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("recipients: read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var (
		entries []Entry
		seen    int
	)
	row := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("recipients: read row %d: %w", row+1, err)
		}
		if blank(record) {
			continue
		}
		row++
		seen++

		entry := Entry{
			Name:        field(record, index[ColumnName]),
			Email:       strings.ToLower(field(record, index[ColumnEmail])),
			ClientEmail: strings.ToLower(field(record, index[ColumnClientEmail])),
		}

		if entry.Name == "" && entry.Email == "" && entry.ClientEmail == "" {
			continue
		}
		if err := validate(row, entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if seen == 0 {
		return nil, ErrNoRows
	}
	return entries, nil
}

// Duplicates returns every email that appears more than once, in order of
// its second appearance. The server rejects uploads containing these.
func Duplicates(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	var dups []string
	for _, e := range entries {
		if _, ok := seen[e.Email]; ok {
			dups = append(dups, e.Email)
			continue
		}
		seen[e.Email] = struct{}{}
	}
	return dups
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ColumnError{Missing: missing}
	}
	return index, nil
}

func blank(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func validate(row int, e Entry) error {
	switch {
	case e.Name == "":
		return &RowError{Row: row, Field: ColumnName, Err: ErrMissingField}
	case e.Email == "":
		return &RowError{Row: row, Field: ColumnEmail, Err: ErrMissingField}
	case e.ClientEmail == "":
		return &RowError{Row: row, Field: ColumnClientEmail, Err: ErrMissingField}
	case !ValidEmail(e.Email):
		return &RowError{Row: row, Field: ColumnEmail, Value: e.Email, Err: ErrInvalidEmail}
	case !ValidEmail(e.ClientEmail):
		return &RowError{Row: row, Field: ColumnClientEmail, Value: e.ClientEmail, Err: ErrInvalidEmail}
	}
	return nil
}
