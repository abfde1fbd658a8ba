package services

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"survey-dashboard/catalog"
	"survey-dashboard/models"
	"survey-dashboard/utils"
)

// Parse errors.
var (
	ErrNoHeader      = errors.New("normalizer: missing header row")
	ErrNotUTF8       = errors.New("normalizer: input is not valid UTF-8")
	ErrUnknownLayout = errors.New("normalizer: header has neither a location nor an age column")
)

const (
	maxLineSize = 1 << 20
	// maxContinuation bounds how many physical lines one quoted answer may span.
	maxContinuation = 8
)

// Normalizer turns questionnaire exports and API rows into SurveyRecords.
type Normalizer struct {
	catalog *catalog.Catalog
	logger  *utils.Logger
}

// NewNormalizer creates a Normalizer for the given questionnaire layout.
func NewNormalizer(cat *catalog.Catalog, logger *utils.Logger) *Normalizer {
	return &Normalizer{catalog: cat, logger: logger}
}

// Parse reads semicolon-delimited UTF-8 text with a header row. Columns map
// to fields by position; short rows leave trailing fields empty and extra
// columns are ignored. Rows without a location or age answer are dropped.
//
// Each record is read from its own line. A row with broken quoting is split
// leniently and logged, so it never absorbs the rows after it.
func (n *Normalizer) Parse(r io.Reader) ([]models.SurveyRecord, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	scanner := &rowScanner{lines: lines}

	headers, _, _, ok := scanner.Scan(0)
	if !ok {
		return nil, ErrNoHeader
	}

	keys := make([]string, len(headers))
	unknown := 0
	for i, h := range headers {
		if key, ok := n.catalog.KeyForHeader(h); ok {
			keys[i] = key
			continue
		}
		keys[i] = catalog.NormalizeHeader(h)
		unknown++
	}
	if !slices.Contains(keys, n.catalog.Roles.Location) && !slices.Contains(keys, n.catalog.Roles.Age) {
		return nil, ErrUnknownLayout
	}
	if unknown > 0 {
		n.logger.Debug("[normalizer] %d of %d columns not in catalog, kept verbatim", unknown, len(headers))
	}

	var (
		records  []models.SurveyRecord
		rows     int
		skipped  int
		repaired int
	)
	for {
		row, line, lenient, ok := scanner.Scan(len(keys))
		if !ok {
			break
		}
		rows++
		if lenient {
			n.logger.Warn("[normalizer] Line %d has malformed quoting, splitting it on ';'", line)
			repaired++
		}

		fields := make(map[string]string, len(keys))
		for i, key := range keys {
			val := ""
			if i < len(row) {
				val = strings.TrimSpace(row[i])
			}
			fields[key] = val
		}

		rec := n.build(fields, models.SourceCSV)
		if rec.ID == "" {
			rec.ID = "row-" + strconv.Itoa(rows)
		}
		if !n.Keep(rec) {
			n.logger.Debug("[normalizer] Dropping non-response row %s", rec.ID)
			skipped++
			continue
		}
		records = append(records, rec)
	}

	n.logger.Info("[normalizer] Parsed %d rows: %d kept, %d dropped, %d with malformed quoting",
		rows, len(records), skipped, repaired)
	return records, nil
}

func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("%w: line %d", ErrNotUTF8, len(lines)+1)
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("normalizer: read: %w", err)
	}
	return lines, nil
}

// rowScanner yields one record per physical line. A quoted answer may span
// several lines only when the joined text is well-formed CSV.
type rowScanner struct {
	lines []string
	next  int
}

// Scan returns the next non-blank record, the line it starts on and whether
// it had to be split leniently. want is the expected column count, 0 if unknown.
func (s *rowScanner) Scan(want int) (fields []string, line int, lenient bool, ok bool) {
	for s.next < len(s.lines) {
		i := s.next
		text := s.lines[i]
		s.next++
		if strings.TrimSpace(text) == "" {
			continue
		}
		if fields, err := splitStrict(text); err == nil {
			return fields, i + 1, false, true
		}

		loose := splitLenient(text)
		if want > 0 && len(loose) < want {
			joined := text
			for j := i + 1; j < len(s.lines) && j <= i+maxContinuation; j++ {
				joined += "\n" + s.lines[j]
				if fields, err := splitStrict(joined); err == nil && len(fields) <= want {
					s.next = j + 1
					return fields, i + 1, false, true
				}
			}
		}
		return loose, i + 1, true, true
	}
	return nil, 0, false, false
}

var errTrailingData = errors.New("normalizer: more than one record")

func splitStrict(text string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	fields, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if _, err := reader.Read(); err != io.EOF {
		return nil, errTrailingData
	}
	return fields, nil
}

// splitLenient splits one line on ';' when its quoting is not valid CSV.
// A field opening with a quote ends at a quote followed by ';' or the end of
// the line, preferring the first such quote that leaves the quotes inside
// the field paired. A quote that never closes is dropped and the field ends
// at the next ';'.
func splitLenient(text string) []string {
	var fields []string
	i := 0
	for {
		if i < len(text) && text[i] == '"' {
			if end := closingQuote(text, i); end > 0 {
				fields = append(fields, strings.ReplaceAll(text[i+1:end], `""`, `"`))
				i = end + 1
				if i >= len(text) {
					return fields
				}
				i++
				continue
			}
		}
		end := strings.IndexByte(text[i:], ';')
		if end < 0 {
			return append(fields, strings.TrimPrefix(text[i:], `"`))
		}
		fields = append(fields, strings.TrimPrefix(text[i:i+end], `"`))
		i += end + 1
	}
}

func closingQuote(text string, open int) int {
	first := -1
	inner := 0
	for j := open + 1; j < len(text); j++ {
		if text[j] != '"' {
			continue
		}
		if j+1 == len(text) || text[j+1] == ';' {
			if inner%2 == 0 {
				return j
			}
			if first < 0 {
				first = j
			}
		}
		inner++
	}
	return first
}

// Keep reports whether rec answers at least one of the identifying questions.
func (n *Normalizer) Keep(rec models.SurveyRecord) bool {
	return rec.Answered(n.catalog.Roles.Location) || rec.Answered(n.catalog.Roles.Age)
}

// FromAPIRow maps a JSON row of the remote API shape (snake_case names such
// as "age_group" or "custom_address") into a SurveyRecord. Unknown names are
// ignored. An exact field name wins over an alias for the same field.
func (n *Normalizer) FromAPIRow(row map[string]any) models.SurveyRecord {
	fields := make(map[string]string, len(row))

	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	var aliased []string
	for _, name := range names {
		key, ok := n.catalog.KeyForName(name)
		if !ok {
			continue
		}
		if key != name {
			aliased = append(aliased, name)
			continue
		}
		fields[key] = stringify(row[name])
	}
	for _, name := range aliased {
		key, _ := n.catalog.KeyForName(name)
		if fields[key] == "" {
			fields[key] = stringify(row[name])
		}
	}

	return n.build(fields, models.SourceStore)
}

// FromAnswers builds a record from already-keyed answers, dropping unknown keys.
func (n *Normalizer) FromAnswers(id string, answers map[string]string) models.SurveyRecord {
	fields := make(map[string]string, len(answers))
	for k, v := range answers {
		if key, ok := n.catalog.KeyForName(k); ok {
			fields[key] = strings.TrimSpace(v)
		}
	}
	rec := n.build(fields, models.SourceStore)
	if id != "" {
		rec.ID = id
	}
	return rec
}

func (n *Normalizer) build(fields map[string]string, source string) models.SurveyRecord {
	idKey := n.catalog.Roles.ID
	id := fields[idKey]
	delete(fields, idKey)
	return models.SurveyRecord{ID: id, Source: source, Fields: fields}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return models.Yes
		}
		return models.No
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
