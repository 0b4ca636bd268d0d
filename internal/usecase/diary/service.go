// Package diary реализует пайплайн генерации дневника: выборка сообщений за
// день, сборка хроники, вызов модели и сохранение результата.
package diary

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/metrics"
	"github.com/magisk317/diary-plugin/internal/usecase/scope"
)

// Config — настройки пайплайна генерации.
type Config struct {
	// BotID — аккаунт бота, его сообщения в хронике подписываются от первого лица.
	BotID string
	// Mode и ChatList задают область чатов: whitelist или blacklist
	// плюс элементы вида "group:<id>" и "private:<id>".
	Mode     string
	ChatList []string
	// MinMessages — минимум сообщений за день для запуска генерации.
	MinMessages int
	// MinPerChat — порог на чат, тихие чаты не попадают в хронику.
	// Значение меньше единицы отключает фильтр.
	MinPerChat int
	// MaxLength — предел длины готового дневника в символах.
	MaxLength int
	// TargetMin и TargetMax — диапазон желаемой длины, из которого
	// случайно выбирается значение для промпта.
	TargetMin int
	TargetMax int
	// CustomTemplate — пользовательский шаблон промпта, пустая строка
	// означает встроенный.
	CustomTemplate string
	Persona        domain.Persona
	// PublishEnabled включает публикацию готового дневника через мост.
	PublishEnabled bool
}

// Service управляет полным запуском генерации дневника за дату.
type Service struct {
	cfg       Config
	selector  *scope.Selector
	fetcher   *Fetcher
	builder   *Builder
	generator domain.Generator
	diaries   domain.DiaryRepo
	publisher domain.Publisher
	rng       *rand.Rand
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт пайплайн. publisher может быть nil, тогда публикация
// пропускается независимо от настройки.
func NewService(
	cfg Config,
	selector *scope.Selector,
	fetcher *Fetcher,
	builder *Builder,
	generator domain.Generator,
	diaries domain.DiaryRepo,
	publisher domain.Publisher,
	log zerolog.Logger,
) *Service {
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = domain.MinMessageCount
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 350
	}
	if cfg.MaxLength > domain.MaxDiaryLength {
		cfg.MaxLength = domain.MaxDiaryLength
	}
	if cfg.TargetMin <= 0 {
		cfg.TargetMin = 250
	}
	if cfg.TargetMax < cfg.TargetMin {
		cfg.TargetMax = cfg.TargetMin + 100
	}
	return &Service{
		cfg:       cfg,
		selector:  selector,
		fetcher:   fetcher,
		builder:   builder,
		generator: generator,
		diaries:   diaries,
		publisher: publisher,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		log:       log,
	}
}

// Generate выполняет один запуск пайплайна за дату в каноническом виде
// YYYY-MM-DD. Возвращает текст дневника либо человекочитаемую причину отказа.
// Любая неудача после начала генерации оставляет в хранилище запись о сбое.
func (s *Service) Generate(ctx context.Context, date string, cause domain.DiaryJobCause) (bool, string) {
	start := s.now()
	manual := cause == domain.DiaryCauseManual
	metrics.IncDiaryRun(string(cause))

	window, err := WindowForDate(date, s.now())
	if err != nil {
		return false, fmt.Sprintf("日期无效: %s", date)
	}

	resolved := s.selector.Resolve(ctx, s.cfg.Mode, scope.ParseEntries(s.cfg.ChatList, s.log))
	if resolved.Kind == domain.ScopeDisabled && !manual {
		s.log.Info().Str("date", date).Msg("область чатов выключена, плановый запуск пропущен")
		return false, "当前配置禁用了日记生成"
	}

	raw := s.fetcher.Fetch(ctx, resolved, window, manual)
	if len(raw) < s.cfg.MinMessages {
		s.log.Info().Str("date", date).Int("messages", len(raw)).Msg("сообщений за день слишком мало")
		return false, fmt.Sprintf("当天消息数量不足(%d条),无法生成日记", len(raw))
	}
	filtered := FilterQuietChats(raw, s.cfg.MinPerChat)

	transcript, stats := s.builder.Build(ctx, filtered)
	ceiling := domain.TokenLimit126K
	if manual {
		ceiling = domain.TokenLimit50K
	}
	if EstimateTokens(transcript) > ceiling {
		transcript = TruncateToBudget(transcript, ceiling)
	}

	weather := WeatherByEmotion(filtered, s.rng)
	prompt := ComposePrompt(PromptInput{
		Date:            date,
		Timeline:        transcript,
		DateWithWeather: DateWithWeather(date, weather),
		TargetLength:    s.cfg.TargetMin + s.rng.Intn(s.cfg.TargetMax-s.cfg.TargetMin+1),
		Persona:         s.cfg.Persona,
	}, s.cfg.CustomTemplate)

	ok, content := s.generator.Generate(ctx, prompt, transcript, cause)
	if !ok || content == "" {
		reason := content
		if reason == "" {
			reason = "模型生成日记失败"
		}
		s.saveFailure(ctx, date, reason)
		metrics.ObserveDiaryRun(string(cause), false, time.Since(start))
		return false, reason
	}

	if len([]rune(content)) > s.cfg.MaxLength {
		content = SmartTruncate(content, s.cfg.MaxLength)
	}

	rec := domain.DiaryRecord{
		Date:         date,
		Content:      content,
		WordCount:    len([]rune(content)),
		GeneratedAt:  s.now().Unix(),
		Weather:      weather,
		BotMessages:  stats.BotMessages,
		UserMessages: stats.UserMessages,
		Status:       domain.StatusGenerated,
	}
	if err := s.diaries.SaveDiary(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("не удалось сохранить дневник")
		reason := "保存日记失败"
		s.saveFailure(ctx, date, reason)
		metrics.ObserveDiaryRun(string(cause), false, time.Since(start))
		return false, reason
	}

	s.publish(ctx, rec)
	metrics.ObserveDiaryRun(string(cause), true, time.Since(start))
	return true, content
}

// publish отправляет дневник во внешний сервис и дописывает итог публикации
// в сохранённую запись. Сбой публикации не отменяет успешную генерацию.
func (s *Service) publish(ctx context.Context, rec domain.DiaryRecord) {
	if !s.cfg.PublishEnabled || s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, rec.Content)
	switch {
	case err == nil:
		rec.Published = true
		rec.PublishedAt = s.now().Unix()
		rec.Status = domain.StatusPublished
		rec.ErrorMessage = ""
	case errors.Is(err, domain.ErrPublishAuth):
		rec.Status = domain.StatusPublishError
		rec.ErrorMessage = "原因:QQ空间发布失败,可能是cookie过期"
	case errors.Is(err, domain.ErrPublishUnavailable):
		rec.Status = domain.StatusPublishError
		rec.ErrorMessage = "原因:QQ空间发布失败,网络问题"
	default:
		rec.Status = domain.StatusPublishError
		rec.ErrorMessage = fmt.Sprintf("原因:发布异常 - %v", err)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("date", rec.Date).Msg("публикация дневника не удалась")
		metrics.IncPublishError()
	}

	if saveErr := s.diaries.SaveDiary(ctx, rec); saveErr != nil {
		s.log.Error().Err(saveErr).Str("date", rec.Date).Msg("не удалось дописать итог публикации")
	}
}

// DebugReport — сводка пайплайна без вызова модели, для команды отладки.
type DebugReport struct {
	Date             string
	Scope            domain.ResolvedScope
	TotalMessages    int
	FilteredMessages int
	Stats            domain.TranscriptStats
	// Speakers — число реплик по участникам в подписях хроники.
	Speakers      map[string]int
	TokenEstimate int
	Weather       string
}

// Debug прогоняет пайплайн до сборки промпта и возвращает сводку.
// Хранилище при этом не меняется.
func (s *Service) Debug(ctx context.Context, date string) (DebugReport, error) {
	window, err := WindowForDate(date, s.now())
	if err != nil {
		return DebugReport{}, err
	}

	resolved := s.selector.Resolve(ctx, s.cfg.Mode, scope.ParseEntries(s.cfg.ChatList, s.log))
	raw := s.fetcher.Fetch(ctx, resolved, window, true)
	filtered := FilterQuietChats(raw, s.cfg.MinPerChat)
	transcript, stats := s.builder.Build(ctx, filtered)

	speakers := make(map[string]int, 8)
	for _, msg := range filtered {
		speakers[s.builder.speakerName(msg)]++
	}

	return DebugReport{
		Date:             date,
		Scope:            resolved,
		TotalMessages:    len(raw),
		FilteredMessages: len(filtered),
		Stats:            stats,
		Speakers:         speakers,
		TokenEstimate:    EstimateTokens(transcript),
		Weather:          WeatherByEmotion(filtered, s.rng),
	}, nil
}

// saveFailure сохраняет минимальную запись о сбое, чтобы у каждой попытки
// генерации остался след.
func (s *Service) saveFailure(ctx context.Context, date, reason string) {
	rec := domain.DiaryRecord{
		Date:         date,
		GeneratedAt:  s.now().Unix(),
		Weather:      domain.WeatherOvercast,
		Status:       domain.StatusGenerateError,
		ErrorMessage: "原因:" + reason,
	}
	if err := s.diaries.SaveDiary(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("не удалось сохранить запись о сбое")
	}
}
