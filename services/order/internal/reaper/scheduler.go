package reaper

import (
	"context"

	"github.com/robfig/cron/v3"

	"example.com/reservation-order/pkg/logger"
)

// Scheduler запускает Reaper.RunOnce по cron выражению с секундами
// (например "0 * * * * *" — каждую минуту).
type Scheduler struct {
	cron   *cron.Cron
	reaper *Reaper
	spec   string
}

// NewScheduler создаёт планировщик. Если предыдущий проход ещё идёт, тик пропускается.
func NewScheduler(r *Reaper, spec string) *Scheduler {
	l := logger.With().Str("component", "reaper-cron").Logger()
	cronLogger := cron.PrintfLogger(&l)

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		reaper: r,
		spec:   spec,
	}
}

// Run регистрирует задачу и блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		_, _ = s.reaper.RunOnce(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info().Str("cron", s.spec).Msg("Reaper запущен")

	<-ctx.Done()

	// Ждём завершения текущего прохода.
	<-s.cron.Stop().Done()
	logger.Info().Msg("Reaper остановлен")
	return nil
}
