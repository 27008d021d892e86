package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/schedule"
)

// SaveSnapshot upserts every week/day/time cell of the snapshot. Weeks are
// keyed by their normalized label; cells already stored are overwritten.
func (s *Store) SaveSnapshot(ctx context.Context, weeks []schedule.Week) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, w := range weeks {
			if err := s.saveWeek(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveWeek(ctx context.Context, tx pgx.Tx, w schedule.Week) error {
	label := schedule.NormalizeWeekLabel(w.Label)
	var start, end *time.Time
	if !w.Start.IsZero() {
		st := w.Start
		en := w.Start.AddDate(0, 0, 6)
		start, end = &st, &en
	}

	sqlWeek := `
        INSERT INTO weeks (week_label, start_date, end_date, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (week_label) DO UPDATE SET
            start_date = EXCLUDED.start_date,
            end_date = EXCLUDED.end_date,
            updated_at = EXCLUDED.updated_at
        RETURNING week_id;
    `
	var weekID int64
	if err := tx.QueryRow(ctx, sqlWeek, label, start, end).Scan(&weekID); err != nil {
		return fmt.Errorf("failed to upsert week %q: %w", label, err)
	}

	days := make([]time.Weekday, 0, len(w.Days))
	for d := range w.Days {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	sqlDay := `
        INSERT INTO week_days (week_id, day_name)
        VALUES ($1, $2)
        ON CONFLICT (week_id, day_name) DO UPDATE SET day_name = EXCLUDED.day_name
        RETURNING day_id;
    `
	sqlSlot := `
        INSERT INTO timeslots (day_id, slot_time, available)
        VALUES ($1, $2, $3)
        ON CONFLICT (day_id, slot_time) DO UPDATE SET available = EXCLUDED.available;
    `
	for _, d := range days {
		var dayID int64
		if err := tx.QueryRow(ctx, sqlDay, weekID, d.String()).Scan(&dayID); err != nil {
			return fmt.Errorf("failed to upsert %s of week %q: %w", d, label, err)
		}

		slots := w.Days[d]
		if len(slots) == 0 {
			continue
		}
		times := make([]schedule.Clock, 0, len(slots))
		for c := range slots {
			times = append(times, c)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

		batch := &pgx.Batch{}
		for _, c := range times {
			batch.Queue(sqlSlot, dayID, c.String(), slots[c])
		}
		br := tx.SendBatch(ctx, batch)
		if br == nil {
			return fmt.Errorf("failed to send batch: batch results is nil")
		}
		for i := range times {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to upsert slot %s of %s, week %q (index %d): %w", times[i], d, label, i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
	}
	s.log.Debug("Week snapshot stored.", zap.String("week", label), zap.Int("days", len(days)))
	return nil
}

// PruneWeeks deletes every stored week whose label is not in keep.
func (s *Store) PruneWeeks(ctx context.Context, keep []string) (int64, error) {
	labels := make([]string, len(keep))
	for i, l := range keep {
		labels[i] = schedule.NormalizeWeekLabel(l)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM weeks WHERE NOT (week_label = ANY($1));`, labels)
	if err != nil {
		return 0, fmt.Errorf("failed to prune weeks: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.log.Info("Pruned stale availability weeks.", zap.Int64("weeks", n))
	}
	return tag.RowsAffected(), nil
}

// AvailableTimeframes aggregates the stored available cells of the given
// days that fall within r into timeframes. Days before now are dropped.
func (s *Store) AvailableTimeframes(ctx context.Context, days []time.Weekday, r schedule.Range, now time.Time) ([]schedule.Timeframe, error) {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}

	query := `
        SELECT w.week_label, w.start_date, d.day_name, t.slot_time
        FROM timeslots t
        JOIN week_days d ON d.day_id = t.day_id
        JOIN weeks w ON w.week_id = d.week_id
        WHERE t.available AND d.day_name = ANY($1)
        ORDER BY w.start_date ASC NULLS LAST, w.week_label ASC, t.slot_time ASC;
    `
	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability: %w", err)
	}
	defer rows.Close()

	var (
		weeks []schedule.Week
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			label, dayName, slot string
			start                *time.Time
		)
		if err := rows.Scan(&label, &start, &dayName, &slot); err != nil {
			return nil, fmt.Errorf("failed to scan availability row: %w", err)
		}
		day, err := schedule.ParseWeekday(dayName)
		if err != nil {
			s.log.Warn("Skipping stored day with an unknown name.", zap.String("day", dayName))
			continue
		}
		c, err := schedule.ParseClock(slot)
		if err != nil || !r.Contains(c) {
			continue
		}

		i, ok := index[label]
		if !ok {
			w := schedule.Week{Label: label, Days: map[time.Weekday]map[schedule.Clock]bool{}}
			if start != nil {
				w.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location())
			}
			weeks = append(weeks, w)
			i = len(weeks) - 1
			index[label] = i
		}
		if weeks[i].Days[day] == nil {
			weeks[i].Days[day] = map[schedule.Clock]bool{}
		}
		weeks[i].Days[day][c] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return schedule.FilterPast(schedule.AggregateWeeks(weeks, days), now), nil
}
