package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/calendar"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
)

var errStubUnavailable = errors.New("stub: service unavailable")

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func cabotMapping() *domain.MappingTable {
	return domain.NewMappingTable([]domain.MappingEntry{
		{SourceName: "CABOT", Asset: "CABOT_A", OpsType: domain.OpsTypeGenerator, NodeID: "12345", Location: "UN.CABOT"},
	})
}

// cabotTarget narrows the ancillary DAAS target to one name.
func cabotTarget(t *testing.T, services ...string) domain.Target {
	t.Helper()
	target, err := domain.ResolveTarget(domain.TableAncillary, domain.ReportDAAS)
	require.NoError(t, err)
	target.Names = []string{"CABOT"}
	if len(services) > 0 {
		target.Services = services
	}
	return target
}

func runConfig(t *testing.T, target domain.Target, start, end time.Time) RunConfig {
	return RunConfig{
		RunID:        "test-run",
		Target:       target,
		Start:        start,
		End:          end,
		Location:     newYork(t),
		Workers:      2,
		BaseURL:      "https://pharos.test/downloads.csv",
		Organization: "ho-fl",
	}
}

// seed stores a value for every calendar slot of the target between start and
// end, letting edit adjust or skip (return false) individual records.
func seed(t *testing.T, store *sqlstore.Store, target domain.Target, start, end time.Time, edit func(*domain.Record) bool) int {
	t.Helper()
	loc := newYork(t)
	slots, err := calendar.Generate(start, end, loc, target.Combos())
	require.NoError(t, err)
	var records []domain.Record
	for _, slot := range slots {
		rec := target.Placeholder(slot, "CABOT_A")
		rec.DAVolume = domain.Numeric(5)
		if edit != nil && !edit(&rec) {
			continue
		}
		records = append(records, rec)
	}
	n, err := store.Upsert(context.Background(), target.Table, records, sqlstore.UpsertOptions{Mode: sqlstore.ModeCreate, Location: loc})
	require.NoError(t, err)
	return n
}

func daasRow(date, he, name string, tmsr, tmnsr, tmor, eir string) []string {
	return []string{"D", "SD_DAASCLEARED", date, "2025-06-02T10:00:00", "D", he, "", name, "Generator", tmsr, tmnsr, tmor, eir}
}

func daasDay(date, name, value string) domain.RawTable {
	var rows [][]string
	for he := 1; he <= 24; he++ {
		rows = append(rows, daasRow(date, fmt.Sprintf("%02d", he), name, value, value, value, value))
	}
	return domain.RawTable{Source: "stub", Rows: rows}
}

type stubFetcher struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]domain.RawTable
	errs      map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (domain.RawTable, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.RawTable{}, err
	}
	since := u.Query().Get("settle_since")
	if err, ok := f.errs[since]; ok {
		return domain.RawTable{}, err
	}
	if table, ok := f.responses[since]; ok {
		return table, nil
	}
	return domain.RawTable{}, domain.ErrEmptyResponse
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func findRecord(t *testing.T, store *sqlstore.Store, table string, since time.Time, he time.Time, service string) (domain.Record, bool) {
	t.Helper()
	snap, err := store.Read(context.Background(), table, since, newYork(t))
	require.NoError(t, err)
	for _, rec := range snap.Records {
		if rec.HourEnding.Equal(he) && rec.Service == service {
			return rec, true
		}
	}
	return domain.Record{}, false
}

func fixedNow() time.Time {
	return time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
}
