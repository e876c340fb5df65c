package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/config"
	"github.com/hackgods/provider-slot-booking/internal/db"
	"github.com/hackgods/provider-slot-booking/internal/logging"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
)

// seedConfig controls how many calendars are generated. Provider IDs run
// from 1 to Providers so the simulator can find them.
type seedConfig struct {
	Providers    int
	Days         int
	BlockedRatio float64
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if cfg.StorageDriver != config.StoragePostgres {
		fmt.Fprintln(os.Stderr, "seed requires STORAGE_DRIVER=postgres")
		os.Exit(1)
	}

	logger := logging.New("seed", "dev", cfg.LogLevel)
	logger.Info().Msg("seed starting")

	sc := seedConfig{
		Providers:    getInt("SEED_PROVIDERS", 100),
		Days:         getInt("SEED_DAYS", 14),
		BlockedRatio: getFloat("SEED_BLOCKED_RATIO", 0.15),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:         cfg.PostgresMaxConns,
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	svc := schedule.NewService(schedule.NewPgRepository(pool), logger, schedule.WithLocation(cfg.Timezone))

	created, skipped, err := seedCalendars(context.Background(), svc, sc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed calendars")
	}

	logger.Info().Int("created", created).Int("skipped", skipped).Msg("seed complete")
}

func seedCalendars(ctx context.Context, svc *schedule.Service, sc seedConfig, logger zerolog.Logger) (created, skipped int, err error) {
	logger.Info().
		Int("providers", sc.Providers).
		Int("days", sc.Days).
		Msg("seeding provider calendars")

	today := schedule.CivilDate(time.Now(), svc.Location())

	for p := 1; p <= sc.Providers; p++ {
		providerID := int64(p)
		shift := newShift()

		for d := 1; d <= sc.Days; d++ {
			date := today.AddDate(0, 0, d)
			if isWeekend(date) && gofakeit.Number(0, 3) != 0 {
				continue
			}

			_, err := svc.CreateSchedule(ctx, providerID, date, shift.slots(sc.BlockedRatio))
			switch {
			case errors.Is(err, schedule.ErrDuplicateSchedule):
				skipped++
			case err != nil:
				return created, skipped, fmt.Errorf("provider %d on %s: %w", providerID, date.Format(schedule.DateLayout), err)
			default:
				created++
			}
		}

		if p%25 == 0 {
			logger.Info().Int("providers", p).Int("created", created).Msg("calendars seeded")
		}
	}

	return created, skipped, nil
}

// shift is one provider's working pattern, reused for every day.
type shift struct {
	startHour int
	endHour   int
	step      time.Duration
}

func newShift() shift {
	steps := []time.Duration{15 * time.Minute, 30 * time.Minute, time.Hour}
	start := gofakeit.Number(7, 10)
	return shift{
		startHour: start,
		endHour:   start + gofakeit.Number(6, 9),
		step:      steps[gofakeit.Number(0, len(steps)-1)],
	}
}

func (s shift) slots(blockedRatio float64) map[string]bool {
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(map[string]bool)
	for t := base.Add(time.Duration(s.startHour) * time.Hour); t.Before(base.Add(time.Duration(s.endHour) * time.Hour)); t = t.Add(s.step) {
		out[schedule.SlotKey(t)] = gofakeit.Float64Range(0, 1) >= blockedRatio
	}
	return out
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
