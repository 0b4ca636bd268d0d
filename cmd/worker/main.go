package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/adapters/generator"
	"github.com/magisk317/diary-plugin/internal/adapters/publisher"
	"github.com/magisk317/diary-plugin/internal/adapters/repo"
	"github.com/magisk317/diary-plugin/internal/adapters/telegram"
	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/cache"
	"github.com/magisk317/diary-plugin/internal/infra/config"
	"github.com/magisk317/diary-plugin/internal/infra/db"
	"github.com/magisk317/diary-plugin/internal/infra/log"
	"github.com/magisk317/diary-plugin/internal/infra/metrics"
	"github.com/magisk317/diary-plugin/internal/infra/queue"
	"github.com/magisk317/diary-plugin/internal/usecase/diary"
	"github.com/magisk317/diary-plugin/internal/usecase/scope"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(redisClient)

	jobs, err := queue.New(cfg.Queue.Backend, cfg.Queue.Key, cfg.Queue.AMQPURL, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать очередь задач")
	}

	var bridge domain.Publisher
	if cfg.Publish.Enabled {
		bridge = publisher.NewBridge(cfg.Publish.BridgeURL, cfg.Publish.Token, logger)
	}

	selector := scope.NewSelector(repoAdapter, repoAdapter, redisCache, logger)
	fetcher := diary.NewFetcher(repoAdapter, logger)
	builder := diary.NewBuilder(cfg.Bot.AccountID, repoAdapter, logger)
	diaryService := diary.NewService(diaryConfig(cfg), selector, fetcher, builder, newGenerator(cfg, logger), repoAdapter, bridge, logger)

	var botAPI *tgbotapi.BotAPI
	if cfg.Telegram.Token != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось создать бота")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		cancel()
	}()

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))
	logger.Info().Msg("worker: запущен")

	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("worker: остановка")
				return
			}
			logger.Error().Err(err).Msg("worker: не удалось получить задачу")
			time.Sleep(time.Second)
			continue
		}

		ok, text := diaryService.Generate(ctx, job.Date, job.Cause)
		logger.Info().Str("job_id", job.ID).Str("date", job.Date).Bool("ok", ok).Msg("worker: запуск завершён")

		if job.ChatID != 0 && botAPI != nil {
			replyResult(botAPI, logger, job, ok, text)
		}

		// Итог запуска уже записан в хранилище, повторная доставка не нужна.
		if err := ack(true); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: не удалось подтвердить задачу")
		}
	}
}

// replyResult отправляет результат ручного запуска в чат, откуда пришла команда.
func replyResult(botAPI *tgbotapi.BotAPI, logger zerolog.Logger, job domain.DiaryJob, ok bool, text string) {
	reply := fmt.Sprintf("📖 Дневник за %s:\n\n%s", job.Date, text)
	if !ok {
		reply = fmt.Sprintf("Не удалось сгенерировать дневник за %s: %s", job.Date, text)
	}
	for _, part := range telegram.SplitMessage(reply) {
		msg := tgbotapi.NewMessage(job.ChatID, part)
		start := time.Now()
		_, err := botAPI.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(job.ChatID, 10), start, err)
		if err != nil {
			logger.Error().Err(err).Int64("chat_id", job.ChatID).Msg("worker: не удалось отправить результат")
			metrics.IncBotSendError()
			return
		}
	}
}

// diaryConfig собирает настройки пайплайна из конфигурации приложения.
func diaryConfig(cfg config.AppConfig) diary.Config {
	return diary.Config{
		BotID:          cfg.Bot.AccountID,
		Mode:           cfg.Diary.ChatMode,
		ChatList:       cfg.Diary.ChatList,
		MinMessages:    cfg.Diary.MinMessages,
		MinPerChat:     cfg.Diary.MinPerChat,
		MaxLength:      cfg.Diary.MaxLength,
		CustomTemplate: cfg.Diary.CustomPrompt,
		Persona: domain.Persona{
			Core:     cfg.Persona.Core,
			Style:    cfg.Persona.Style,
			Interest: cfg.Persona.Interest,
			Nickname: cfg.Bot.Nickname,
		},
		PublishEnabled: cfg.Publish.Enabled,
	}
}

// newGenerator выбирает путь генерации: пользовательская модель или модель хоста.
func newGenerator(cfg config.AppConfig, logger zerolog.Logger) domain.Generator {
	if cfg.CustomModel.Enabled {
		return generator.NewCustom(generator.CustomConfig{
			APIURL:         cfg.CustomModel.APIURL,
			APIKey:         cfg.CustomModel.APIKey,
			Name:           cfg.CustomModel.Name,
			Temperature:    cfg.CustomModel.Temperature,
			TimeoutSeconds: cfg.CustomModel.TimeoutSeconds,
			MaxContextK:    cfg.CustomModel.MaxContextK,
		}, logger)
	}
	return generator.NewHostModel(map[string]generator.ModelConfig{
		generator.ReplyerModelName: {
			APIURL:      cfg.Replyer.APIURL,
			APIKey:      cfg.Replyer.APIKey,
			Name:        cfg.Replyer.Name,
			Temperature: cfg.Replyer.Temperature,
		},
	}, logger)
}
