package diary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/usecase/scope"
)

type stubStreams struct {
	groups   map[string]string
	privates map[string]string
}

func (s *stubStreams) UpsertStream(context.Context, domain.Stream) error { return nil }

func (s *stubStreams) StreamIDByGroup(_ context.Context, groupID string) (string, error) {
	if id, ok := s.groups[groupID]; ok {
		return id, nil
	}
	return "", domain.ErrStreamNotFound
}

func (s *stubStreams) StreamIDByUser(_ context.Context, userID string) (string, error) {
	if id, ok := s.privates[userID]; ok {
		return id, nil
	}
	return "", domain.ErrStreamNotFound
}

type memoryCache struct {
	values map[string][]byte
}

func (c *memoryCache) Set(key string, value []byte, _ time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	c.values[key] = value
	return nil
}

func (c *memoryCache) Get(key string) ([]byte, error) { return c.values[key], nil }

type stubDiaries struct {
	saved    []domain.DiaryRecord
	failSave bool
}

func (s *stubDiaries) SaveDiary(_ context.Context, rec domain.DiaryRecord) error {
	if s.failSave {
		return errors.New("хранилище недоступно")
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *stubDiaries) LatestDiary(context.Context, string) (domain.DiaryRecord, error) {
	return domain.DiaryRecord{}, domain.ErrDiaryNotFound
}

func (s *stubDiaries) DiariesByDate(context.Context, string) ([]domain.DiaryRecord, error) {
	return nil, nil
}

func (s *stubDiaries) ListDiaryDates(context.Context) ([]string, error) { return nil, nil }

func (s *stubDiaries) DiaryStats(context.Context) (domain.DiaryStats, error) {
	return domain.DiaryStats{}, nil
}

type stubGenerator struct {
	ok    bool
	text  string
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, prompt, transcript string, _ domain.DiaryJobCause) (bool, string) {
	s.calls++
	return s.ok, s.text
}

type stubPublisher struct {
	err   error
	calls int
}

func (s *stubPublisher) Publish(context.Context, string) error {
	s.calls++
	return s.err
}

type serviceEnv struct {
	service   *Service
	diaries   *stubDiaries
	generator *stubGenerator
	publisher *stubPublisher
}

func newServiceEnv(t *testing.T, cfg Config, messages *stubMessages) *serviceEnv {
	t.Helper()
	log := zerolog.Nop()
	if messages == nil {
		messages = testRepo()
	}
	if cfg.BotID == "" {
		cfg.BotID = "10001"
	}
	if cfg.Mode == "" {
		cfg.Mode = scope.ModeBlacklist
	}
	diaries := &stubDiaries{}
	generator := &stubGenerator{ok: true, text: "今天聊了很多,很开心。"}
	publisher := &stubPublisher{}
	selector := scope.NewSelector(&stubStreams{}, messages, &memoryCache{}, log)
	service := NewService(cfg, selector, NewFetcher(messages, log), NewBuilder(cfg.BotID, &stubImages{}, log), generator, diaries, publisher, log)
	service.now = func() time.Time { return time.Date(2025, 6, 20, 12, 0, 0, 0, time.Local) }
	return &serviceEnv{service: service, diaries: diaries, generator: generator, publisher: publisher}
}

func dayMessages(stream string, count int) *stubMessages {
	msgs := make([]domain.Message, 0, count)
	for i := 0; i < count; i++ {
		msgs = append(msgs, domain.Message{
			ID:       int64(i + 1),
			StreamID: stream,
			SenderID: "20002",
			SentAt:   sentAt(10, i),
			Text:     "今天很开心",
		})
	}
	return &stubMessages{byStream: map[string][]domain.Message{stream: msgs}}
}

func TestGenerateSuccess(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))

	ok, content := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if !ok {
		t.Fatalf("ожидали успех, получили отказ: %s", content)
	}
	if content != env.generator.text {
		t.Fatalf("неожиданный текст дневника: %q", content)
	}
	if env.generator.calls != 1 {
		t.Fatalf("модель должна вызываться ровно один раз, вызовов: %d", env.generator.calls)
	}
	if len(env.diaries.saved) != 1 {
		t.Fatalf("ожидали одну сохранённую запись, получили %d", len(env.diaries.saved))
	}

	rec := env.diaries.saved[0]
	if rec.Status != domain.StatusGenerated {
		t.Fatalf("неверный статус: %q", rec.Status)
	}
	if rec.Date != "2025-06-18" {
		t.Fatalf("неверная дата записи: %q", rec.Date)
	}
	if rec.WordCount != len([]rune(content)) {
		t.Fatalf("число слов не совпадает с длиной текста")
	}
	if rec.UserMessages != 5 || rec.BotMessages != 0 {
		t.Fatalf("неверные счётчики участия: %+v", rec)
	}
	// Пять сообщений с одним и тем же радостным словом дают один балл за день.
	if rec.Weather != domain.WeatherClearing {
		t.Fatalf("ожидали погоду %q, получили %q", domain.WeatherClearing, rec.Weather)
	}
}

func TestGenerateClampsLongDiary(t *testing.T) {
	env := newServiceEnv(t, Config{MaxLength: 50}, dayMessages("s1", 5))
	env.generator.text = strings.Repeat("写了很多字的日记内容。", 30)

	ok, content := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseManual)
	if !ok {
		t.Fatalf("ожидали успех")
	}
	if len([]rune(content)) > 50 {
		t.Fatalf("текст не укорочен до предела: %d символов", len([]rune(content)))
	}
	if env.diaries.saved[0].Content != content {
		t.Fatalf("в хранилище должен попасть укороченный текст")
	}
}

func TestGenerateModelFailureLeavesRecord(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))
	env.generator.ok = false
	env.generator.text = "自定义模型调用出错: timeout"

	ok, reason := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if ok {
		t.Fatalf("ожидали отказ")
	}
	if reason != env.generator.text {
		t.Fatalf("причина отказа должна совпадать с ответом модели: %q", reason)
	}
	if len(env.diaries.saved) != 1 {
		t.Fatalf("сбой генерации должен оставлять запись о попытке")
	}

	rec := env.diaries.saved[0]
	if rec.Status != domain.StatusGenerateError {
		t.Fatalf("неверный статус записи о сбое: %q", rec.Status)
	}
	if rec.Weather != domain.WeatherOvercast {
		t.Fatalf("запись о сбое должна получать пасмурную погоду")
	}
	if rec.ErrorMessage != "原因:"+reason {
		t.Fatalf("неверная причина в записи: %q", rec.ErrorMessage)
	}
}

func TestGenerateEmptyModelResponse(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))
	env.generator.ok = true
	env.generator.text = ""

	ok, reason := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if ok {
		t.Fatalf("пустой ответ модели должен считаться отказом")
	}
	if reason != "模型生成日记失败" {
		t.Fatalf("неожиданная причина: %q", reason)
	}
	if len(env.diaries.saved) != 1 || env.diaries.saved[0].Status != domain.StatusGenerateError {
		t.Fatalf("ожидали запись о сбое")
	}
}

func TestGenerateTooFewMessages(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 2))

	ok, reason := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if ok {
		t.Fatalf("ожидали отказ при нехватке сообщений")
	}
	if !strings.Contains(reason, "(2条)") {
		t.Fatalf("в причине нет фактического числа сообщений: %q", reason)
	}
	if env.generator.calls != 0 {
		t.Fatalf("модель не должна вызываться")
	}
	if len(env.diaries.saved) != 0 {
		t.Fatalf("управляемый пропуск не должен оставлять записей")
	}
}

func TestGenerateDisabledScopeSkipsScheduledRun(t *testing.T) {
	env := newServiceEnv(t, Config{Mode: scope.ModeWhitelist}, dayMessages("s1", 5))

	ok, reason := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if ok {
		t.Fatalf("плановый запуск при пустом whitelist должен пропускаться")
	}
	if reason != "当前配置禁用了日记生成" {
		t.Fatalf("неожиданная причина: %q", reason)
	}
	if env.generator.calls != 0 || len(env.diaries.saved) != 0 {
		t.Fatalf("пропуск не должен трогать модель и хранилище")
	}

	// Ручной запуск при той же конфигурации читает все чаты.
	if ok, _ := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseManual); !ok {
		t.Fatalf("ручной запуск должен пройти")
	}
}

func TestGenerateInvalidDate(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))

	ok, reason := env.service.Generate(context.Background(), "18.06.2025", domain.DiaryCauseManual)
	if ok {
		t.Fatalf("ожидали отказ для нераспознанной даты")
	}
	if !strings.Contains(reason, "日期无效") {
		t.Fatalf("неожиданная причина: %q", reason)
	}
	if len(env.diaries.saved) != 0 {
		t.Fatalf("нераспознанная дата не должна оставлять записей")
	}
}

func TestGeneratePublishSuccess(t *testing.T) {
	env := newServiceEnv(t, Config{PublishEnabled: true}, dayMessages("s1", 5))

	ok, _ := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if !ok {
		t.Fatalf("ожидали успех")
	}
	if env.publisher.calls != 1 {
		t.Fatalf("публикация должна вызываться один раз")
	}
	if len(env.diaries.saved) != 2 {
		t.Fatalf("итог публикации дописывается отдельным сохранением")
	}

	rec := env.diaries.saved[1]
	if rec.Status != domain.StatusPublished || !rec.Published {
		t.Fatalf("неверный итог публикации: %+v", rec)
	}
	if rec.PublishedAt == 0 {
		t.Fatalf("не проставлено время публикации")
	}
}

func TestGeneratePublishAuthFailure(t *testing.T) {
	env := newServiceEnv(t, Config{PublishEnabled: true}, dayMessages("s1", 5))
	env.publisher.err = domain.ErrPublishAuth

	ok, _ := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if !ok {
		t.Fatalf("сбой публикации не должен отменять успешную генерацию")
	}

	rec := env.diaries.saved[len(env.diaries.saved)-1]
	if rec.Status != domain.StatusPublishError {
		t.Fatalf("неверный статус: %q", rec.Status)
	}
	if !strings.Contains(rec.ErrorMessage, "cookie") {
		t.Fatalf("причина должна указывать на истёкшие cookie: %q", rec.ErrorMessage)
	}
}

func TestGeneratePublishNetworkFailure(t *testing.T) {
	env := newServiceEnv(t, Config{PublishEnabled: true}, dayMessages("s1", 5))
	env.publisher.err = domain.ErrPublishUnavailable

	env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	rec := env.diaries.saved[len(env.diaries.saved)-1]
	if rec.ErrorMessage != "原因:QQ空间发布失败,网络问题" {
		t.Fatalf("неверная причина сетевого сбоя: %q", rec.ErrorMessage)
	}
}

func TestGeneratePublishDisabled(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))

	env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if env.publisher.calls != 0 {
		t.Fatalf("публикация выключена и не должна вызываться")
	}
}

func TestGenerateSaveFailure(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))
	env.diaries.failSave = true

	ok, reason := env.service.Generate(context.Background(), "2025-06-18", domain.DiaryCauseScheduled)
	if ok {
		t.Fatalf("сбой сохранения должен завершать запуск отказом")
	}
	if reason != "保存日记失败" {
		t.Fatalf("неожиданная причина: %q", reason)
	}
}

func TestDebugDoesNotTouchStorageOrModel(t *testing.T) {
	env := newServiceEnv(t, Config{}, dayMessages("s1", 5))

	report, err := env.service.Debug(context.Background(), "2025-06-18")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.TotalMessages != 5 || report.FilteredMessages != 5 {
		t.Fatalf("неверные счётчики сводки: %+v", report)
	}
	if report.TokenEstimate <= 0 {
		t.Fatalf("оценка токенов должна быть положительной")
	}
	if report.Speakers["某人"] != 5 {
		t.Fatalf("неверная активность участников: %v", report.Speakers)
	}
	if env.generator.calls != 0 || len(env.diaries.saved) != 0 {
		t.Fatalf("отладка не должна трогать модель и хранилище")
	}
}
