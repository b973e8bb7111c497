package domain

import "strings"

// RawTable is tabular input as delivered by a source, before any typing.
// Header is empty when the source had no recognised header row.
type RawTable struct {
	Source string
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t RawTable) Len() int {
	return len(t.Rows)
}

// Width returns the widest row, header included.
func (t RawTable) Width() int {
	width := len(t.Header)
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Cell returns the trimmed cell, or "" when the row is shorter.
func (t RawTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// Column returns the index of a header name, or -1.
func (t RawTable) Column(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}
