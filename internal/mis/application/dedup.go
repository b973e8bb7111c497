package application

import (
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

const sampleLimit = 5

type dedupResult struct {
	kept           []domain.Record
	dropped        int
	zeroOverwrites []domain.Key
}

// deduplicate removes parsed records that storage already settles.
//
// Without a value column any stored key settles the record. With one, only a
// stored non-blank non-zero value does: stored zeros stay overwritable and each
// zero replaced by a nonzero value is reported.
func deduplicate(parsed []domain.Record, stored domain.Snapshot, column string) dedupResult {
	existing := make(map[domain.Key]domain.Record, len(stored.Records))
	for _, rec := range stored.Records {
		existing[rec.Key()] = rec
	}
	hasColumn := column != "" && stored.HasColumn(column)

	res := dedupResult{kept: make([]domain.Record, 0, len(parsed))}
	for _, rec := range parsed {
		prev, ok := existing[rec.Key()]
		if !ok {
			res.kept = append(res.kept, rec)
			continue
		}
		if column == "" {
			res.dropped++
			continue
		}
		if !hasColumn {
			res.kept = append(res.kept, rec)
			continue
		}
		old, _ := prev.Column(column)
		if !old.IsBlank() && !old.IsZero() {
			res.dropped++
			continue
		}
		if next, _ := rec.Column(column); old.IsZero() && !next.IsBlank() && !next.IsZero() {
			res.zeroOverwrites = append(res.zeroOverwrites, rec.Key())
		}
		res.kept = append(res.kept, rec)
	}
	return res
}

func keySamples(keys []domain.Key) []string {
	n := len(keys)
	if n > sampleLimit {
		n = sampleLimit
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = keys[i].String()
	}
	return out
}
