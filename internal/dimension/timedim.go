package dimension

import (
	"context"
	"fmt"
	"time"

	"salesdw/internal/clock"
	"salesdw/internal/storage"
)

// HolidayPolicy reports whether a calendar day is a holiday. The default
// covers New Year's Day and Christmas; deployments with a regional calendar
// swap in their own.
type HolidayPolicy func(time.Time) bool

// DefaultHolidays flags January 1 and December 25.
func DefaultHolidays(d time.Time) bool {
	return (d.Month() == time.January && d.Day() == 1) ||
		(d.Month() == time.December && d.Day() == 25)
}

// TimeLoader maintains dim_time. Rows are immutable once written; only dates
// absent from the dimension are inserted, with all derived fields computed
// here so every backend stores identical values.
type TimeLoader struct {
	store   storage.Store
	clk     clock.Clock
	log     Logger
	batch   int
	holiday HolidayPolicy

	cache map[string]int64
}

func NewTimeLoader(store storage.Store, clk clock.Clock, log Logger, batch int, holiday HolidayPolicy) *TimeLoader {
	if log == nil {
		log = discardLogger{}
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if holiday == nil {
		holiday = DefaultHolidays
	}
	return &TimeLoader{store: store, clk: clk, log: log, batch: batch, holiday: holiday}
}

func (l *TimeLoader) Prime(ctx context.Context) error {
	rows, err := l.store.SelectDimAll(ctx, storage.TableTime, storage.ColDate, storage.ColTimeID, "")
	if err != nil {
		return fmt.Errorf("prime time: %w", err)
	}
	l.cache = make(map[string]int64, len(rows))
	for k, row := range rows {
		l.cache[k] = row.ID
	}
	return nil
}

// DateKey truncates an instant to its calendar day at midnight UTC.
func DateKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

var timeCols = []string{"date", "year", "month", "day", "quarter", "month_name", "weekday", "is_weekend", "is_holiday", "created_at"}

func (l *TimeLoader) row(day, now time.Time) []any {
	wd := day.Weekday()
	return []any{
		day,
		day.Year(),
		int(day.Month()),
		day.Day(),
		(int(day.Month())-1)/3 + 1,
		day.Month().String(),
		wd.String(),
		wd == time.Saturday || wd == time.Sunday,
		l.holiday(day),
		now,
	}
}

// LoadDates inserts every date not yet in the dimension. Returns the number
// of rows inserted.
func (l *TimeLoader) LoadDates(ctx context.Context, dates []time.Time) (int, error) {
	if l.cache == nil {
		if err := l.Prime(ctx); err != nil {
			return 0, err
		}
	}
	now := l.clk.Now()

	var rows [][]any
	var keys []any
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		day := DateKey(d)
		key := storage.NormalizeKey(day)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := l.cache[key]; ok {
			continue
		}
		rows = append(rows, l.row(day, now))
		keys = append(keys, day)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, chunk := range chunkRows(rows, l.batch) {
		n, err := l.store.InsertRows(ctx, storage.TableTime, timeCols, chunk, []string{storage.ColDate})
		if err != nil {
			return inserted, fmt.Errorf("insert time rows: %w", err)
		}
		inserted += int(n)
	}

	ids, err := l.store.SelectKeyIDByKeys(ctx, storage.TableTime, storage.ColDate, storage.ColTimeID, keys)
	if err != nil {
		return inserted, fmt.Errorf("refresh time keys: %w", err)
	}
	for _, k := range keys {
		key := storage.NormalizeKey(k)
		id, ok := ids[key]
		if !ok {
			return inserted, fmt.Errorf("date %s missing after insert", key)
		}
		l.cache[key] = id
	}

	l.log.Printf("stage=dimension table=%s inserted=%d cached=%d", storage.TableTime, inserted, len(l.cache))
	return inserted, nil
}

// EnsureDate resolves one date, creating its row if needed. Used for dates
// that surface after the bulk pass.
func (l *TimeLoader) EnsureDate(ctx context.Context, d time.Time) (int64, error) {
	if l.cache == nil {
		if err := l.Prime(ctx); err != nil {
			return 0, err
		}
	}
	day := DateKey(d)
	key := storage.NormalizeKey(day)
	if id, ok := l.cache[key]; ok {
		return id, nil
	}
	if _, err := l.LoadDates(ctx, []time.Time{day}); err != nil {
		return 0, err
	}
	id, ok := l.cache[key]
	if !ok {
		return 0, fmt.Errorf("date %s missing after ensure", key)
	}
	return id, nil
}

// Resolve returns the surrogate key for an instant's calendar day, if loaded.
func (l *TimeLoader) Resolve(d time.Time) (int64, bool) {
	id, ok := l.cache[storage.NormalizeKey(DateKey(d))]
	return id, ok
}
