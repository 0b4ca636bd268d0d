package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/config"
	"github.com/magisk317/diary-plugin/internal/infra/log"
	"github.com/magisk317/diary-plugin/internal/infra/queue"
	"github.com/magisk317/diary-plugin/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	if !cfg.Schedule.Enabled {
		logger.Info().Msg("scheduler: расписание выключено, выходим")
		return
	}

	planner, err := schedule.NewPlanner(cfg.TZ, cfg.Schedule.Time)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректное расписание")
	}

	jobs, err := queue.New(cfg.Queue.Backend, cfg.Queue.Key, cfg.Queue.AMQPURL, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать очередь задач")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		cancel()
	}()

	for {
		next := planner.Next(time.Now())
		logger.Info().Time("next_run", next).Msg("scheduler: ждём следующий запуск")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info().Msg("scheduler: остановка")
			return
		case <-timer.C:
		}

		job := domain.DiaryJob{
			ID:          uuid.NewString(),
			Date:        planner.DateFor(next),
			RequestedAt: time.Now(),
			Cause:       domain.DiaryCauseScheduled,
		}
		if err := jobs.Enqueue(ctx, job); err != nil {
			logger.Error().Err(err).Str("date", job.Date).Msg("scheduler: не удалось поставить задачу")
			continue
		}
		logger.Info().Str("date", job.Date).Msg("scheduler: задача генерации поставлена")
	}
}
