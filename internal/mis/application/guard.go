package application

import (
	"fmt"
	"strings"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// guard fails closed when any composite key repeats.
func guard(records []domain.Record) error {
	dups := domain.DuplicateKeys(records)
	if len(dups) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d keys repeat, e.g. %s", domain.ErrDuplicateKeys, len(dups), strings.Join(keySamples(dups), "; "))
}
