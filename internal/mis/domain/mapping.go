package domain

import (
	"strconv"
	"strings"
)

// MappingEntry links a source-reported asset to the internal asset.
type MappingEntry struct {
	SourceName string
	Asset      string
	OpsType    string
	NodeID     string
	Location   string
}

// MappingTable is the read-only asset mapping for one run.
type MappingTable struct {
	entries    []MappingEntry
	byName     map[string][]int
	byNode     map[string][]int
	byLocation map[string][]int
}

// NewMappingTable indexes entries by source name, node id and location.
func NewMappingTable(entries []MappingEntry) *MappingTable {
	m := &MappingTable{
		entries:    append([]MappingEntry(nil), entries...),
		byName:     make(map[string][]int),
		byNode:     make(map[string][]int),
		byLocation: make(map[string][]int),
	}
	for i, entry := range m.entries {
		if entry.SourceName != "" {
			m.byName[entry.SourceName] = append(m.byName[entry.SourceName], i)
		}
		if node := NormalizeNodeID(entry.NodeID); node != "" {
			m.byNode[node] = append(m.byNode[node], i)
		}
		if entry.Location != "" {
			m.byLocation[entry.Location] = append(m.byLocation[entry.Location], i)
		}
	}
	return m
}

// Len returns the number of entries.
func (m *MappingTable) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of all entries.
func (m *MappingTable) Entries() []MappingEntry {
	if m == nil {
		return nil
	}
	return append([]MappingEntry(nil), m.entries...)
}

// ByName returns every entry for a source name.
func (m *MappingTable) ByName(name string) []MappingEntry {
	if m == nil {
		return nil
	}
	return m.pick(m.byName[strings.TrimSpace(name)])
}

// FirstByName returns the first entry for a source name.
func (m *MappingTable) FirstByName(name string) (MappingEntry, bool) {
	found := m.ByName(name)
	if len(found) == 0 {
		return MappingEntry{}, false
	}
	return found[0], true
}

// ByNode returns every entry for a network node id.
func (m *MappingTable) ByNode(nodeID string) []MappingEntry {
	if m == nil {
		return nil
	}
	return m.pick(m.byNode[NormalizeNodeID(nodeID)])
}

// ByLocation returns every entry for a settlement location name.
func (m *MappingTable) ByLocation(location string) []MappingEntry {
	if m == nil {
		return nil
	}
	return m.pick(m.byLocation[strings.TrimSpace(location)])
}

func (m *MappingTable) pick(idx []int) []MappingEntry {
	if len(idx) == 0 {
		return nil
	}
	out := make([]MappingEntry, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.entries[i])
	}
	return out
}

// NormalizeNodeID makes numeric ids comparable across text and float sources ("123.0" == "123").
func NormalizeNodeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return raw
}

// UnmappedPolicy decides what happens to rows whose source asset has no mapping.
type UnmappedPolicy string

const (
	// UnmappedDrop removes unmapped rows.
	UnmappedDrop UnmappedPolicy = "drop"
	// UnmappedRetain keeps unmapped rows with an empty asset.
	UnmappedRetain UnmappedPolicy = "retain"
)

// ParseUnmappedPolicy parses a policy name; empty means drop.
func ParseUnmappedPolicy(raw string) (UnmappedPolicy, bool) {
	switch UnmappedPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", UnmappedDrop:
		return UnmappedDrop, true
	case UnmappedRetain:
		return UnmappedRetain, true
	default:
		return "", false
	}
}
