package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/adapters/bot"
	"github.com/magisk317/diary-plugin/internal/adapters/generator"
	"github.com/magisk317/diary-plugin/internal/adapters/repo"
	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/cache"
	"github.com/magisk317/diary-plugin/internal/infra/config"
	"github.com/magisk317/diary-plugin/internal/infra/db"
	infrahttp "github.com/magisk317/diary-plugin/internal/infra/http"
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
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(redisClient)

	jobs, err := queue.New(cfg.Queue.Backend, cfg.Queue.Key, cfg.Queue.AMQPURL, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать очередь задач")
	}

	selector := scope.NewSelector(repoAdapter, repoAdapter, redisCache, logger)
	fetcher := diary.NewFetcher(repoAdapter, logger)
	builder := diary.NewBuilder(cfg.Bot.AccountID, repoAdapter, logger)
	diaryService := diary.NewService(diaryConfig(cfg), selector, fetcher, builder, newGenerator(cfg, logger), repoAdapter, nil, logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	h := bot.NewHandler(botAPI, logger, repoAdapter, repoAdapter, repoAdapter, jobs, diaryService, cfg.Bot.AccountID)

	srv := infrahttp.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
	srv.Router.Get("/api/v1/diary/{date}", func(w http.ResponseWriter, r *http.Request) {
		date, err := diary.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := repoAdapter.LatestDiary(r.Context(), date)
		if errors.Is(err, domain.ErrDiaryNotFound) {
			http.Error(w, "дневник не найден", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
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
