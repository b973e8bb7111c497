package parsers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const repeatedHour = "02X"

func trim(s string) string {
	return strings.TrimSpace(s)
}

// parseHourEnding reads an "HE" cell. The repeated fall-back hour "02X"
// reports the second occurrence of HE02.
func parseHourEnding(raw string) (int, bool, error) {
	raw = trim(raw)
	second := false
	if strings.EqualFold(raw, repeatedHour) {
		raw = "02"
		second = true
	}
	he, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid hour ending %q", raw)
	}
	return he, second, nil
}

type occurrenceKey struct {
	name     string
	asset    string
	opsType  string
	flowDate time.Time
	he       int
}

// occurrences numbers repeated (name, asset, ops type, date, HE) groups in row
// order. The second time an hour appears it is the repeated fall-back hour.
type occurrences map[occurrenceKey]int

func (o occurrences) next(key occurrenceKey) int {
	n := o[key]
	o[key] = n + 1
	return n
}

var versionLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
	"01/02/2006",
}

func parseVersion(raw string) (time.Time, bool) {
	raw = trim(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range versionLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type versioned struct {
	key     string
	version time.Time
	valid   bool
}

type versionFilter struct {
	keep    []int
	removed int
	ties    []string
}

// latestVersions keeps one row per key: the one with the greatest version.
// Rows without a valid version sort last. Among rows sharing the winning
// version the first in input order wins and the key is reported as a tie.
func latestVersions(rows []versioned) versionFilter {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := rows[order[a]], rows[order[b]]
		if ra.valid != rb.valid {
			return ra.valid
		}
		return ra.version.After(rb.version)
	})

	var out versionFilter
	winner := make(map[string]int, len(rows))
	tied := make(map[string]bool)
	for _, idx := range order {
		row := rows[idx]
		w, seen := winner[row.key]
		if !seen {
			winner[row.key] = idx
			continue
		}
		out.removed++
		best := rows[w]
		if best.valid == row.valid && best.version.Equal(row.version) && !tied[row.key] {
			tied[row.key] = true
			out.ties = append(out.ties, row.key)
		}
	}
	for idx, row := range rows {
		if winner[row.key] == idx {
			out.keep = append(out.keep, idx)
		}
	}
	return out
}

func tieExamples(ties []string) string {
	if len(ties) > 3 {
		ties = ties[:3]
	}
	return strings.Join(ties, "; ")
}
