package pharos

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// maxJaggedColumns bounds the unnamed-column strategy.
const maxJaggedColumns = 40

const headerSkipRows = 4

// Decode converts a response body into a raw table. CSV strategies run in
// order: unnamed jagged columns, a header found by its "H" marker, a header
// after four preamble rows, then a plain header. JSON is tried after CSV, or
// first when the content type or the body says JSON.
func Decode(body []byte, contentType string) (domain.RawTable, error) {
	text := strings.ReplaceAll(strings.ReplaceAll(string(body), "\r\n", "\n"), "\r", "\n")
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.RawTable{}, domain.ErrEmptyResponse
	}

	jsonFirst := isJSON(contentType) || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")
	if jsonFirst {
		if t, ok := decodeJSON([]byte(trimmed)); ok {
			return t, nil
		}
	}
	if t, ok := decodeCSV(text); ok {
		return t, nil
	}
	if !jsonFirst {
		if t, ok := decodeJSON([]byte(trimmed)); ok {
			return t, nil
		}
	}
	return domain.RawTable{}, fmt.Errorf("pharos: unable to parse response as CSV or JSON; content type %q, length %d, first 1000 chars: %q",
		contentType, len(text), snippet(text, 1000))
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.HasSuffix(strings.TrimSpace(ct), "+json")
}

func readRecords(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func decodeCSV(text string) (domain.RawTable, bool) {
	records, err := readRecords(text)
	if err != nil {
		return domain.RawTable{}, false
	}
	records = dropEmpty(records)
	if len(records) == 0 {
		return domain.RawTable{}, false
	}

	strategies := []func([][]string) (domain.RawTable, bool){
		jagged,
		markedHeader,
		skippedHeader,
		plainHeader,
	}
	for _, strategy := range strategies {
		if t, ok := strategy(records); ok && t.Len() > 0 {
			return t, true
		}
	}
	return domain.RawTable{}, false
}

func jagged(records [][]string) (domain.RawTable, bool) {
	t := domain.RawTable{Rows: records}
	return t, t.Width() <= maxJaggedColumns
}

func markedHeader(records [][]string) (domain.RawTable, bool) {
	for i, row := range records {
		if len(row) > 0 && strings.TrimSpace(row[0]) == "H" {
			return domain.RawTable{Header: row, Rows: records[i+1:]}, true
		}
	}
	return domain.RawTable{}, false
}

func skippedHeader(records [][]string) (domain.RawTable, bool) {
	if len(records) <= headerSkipRows+1 {
		return domain.RawTable{}, false
	}
	return domain.RawTable{Header: records[headerSkipRows], Rows: records[headerSkipRows+1:]}, true
}

func plainHeader(records [][]string) (domain.RawTable, bool) {
	return domain.RawTable{Header: records[0], Rows: records[1:]}, true
}

func dropEmpty(records [][]string) [][]string {
	out := records[:0]
	for _, row := range records {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		out = append(out, row)
	}
	return out
}

func decodeJSON(body []byte) (domain.RawTable, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return domain.RawTable{}, false
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
		for _, key := range []string{"data", "results", "rows", "items"} {
			if list, ok := v[key].([]any); ok {
				items = list
				break
			}
		}
	default:
		return domain.RawTable{}, false
	}

	var header []string
	index := make(map[string]int)
	flat := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := make(map[string]string)
		obj, ok := item.(map[string]any)
		if !ok {
			row["value"] = scalar(item)
		} else {
			flatten("", obj, row)
		}
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, seen := index[k]; !seen {
				index[k] = len(header)
				header = append(header, k)
			}
		}
		flat = append(flat, row)
	}
	if len(flat) == 0 {
		return domain.RawTable{}, false
	}

	rows := make([][]string, 0, len(flat))
	for _, row := range flat {
		out := make([]string, len(header))
		for k, v := range row {
			out[index[k]] = v
		}
		rows = append(rows, out)
	}
	return domain.RawTable{Header: header, Rows: rows}, true
}

func flatten(prefix string, obj map[string]any, out map[string]string) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = scalar(v)
	}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
