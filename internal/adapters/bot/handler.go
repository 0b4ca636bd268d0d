// Package bot обслуживает входящие апдейты Telegram: складывает сообщения
// чатов в хранилище и выполняет команды управления дневником.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/adapters/telegram"
	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/metrics"
	"github.com/magisk317/diary-plugin/internal/usecase/diary"
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot          *tgbotapi.BotAPI
	log          zerolog.Logger
	messages     domain.MessageRepo
	streams      domain.StreamRepo
	diaries      domain.DiaryRepo
	jobs         domain.DiaryQueue
	diaryUC      *diary.Service
	botAccountID string
	now          func() time.Time
}

// NewHandler создаёт обработчик.
func NewHandler(
	bot *tgbotapi.BotAPI,
	log zerolog.Logger,
	messages domain.MessageRepo,
	streams domain.StreamRepo,
	diaries domain.DiaryRepo,
	jobs domain.DiaryQueue,
	diaryUC *diary.Service,
	botAccountID string,
) *Handler {
	return &Handler{
		bot:          bot,
		log:          log,
		messages:     messages,
		streams:      streams,
		diaries:      diaries,
		jobs:         jobs,
		diaryUC:      diaryUC,
		botAccountID: botAccountID,
		now:          time.Now,
	}
}

// HandleUpdate обрабатывает входящий апдейт. Любое сообщение попадает в
// хранилище, команды дневника дополнительно исполняются.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	h.ingest(ctx, msg)

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/diary") {
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/diary"))
		h.handleDiaryCommand(ctx, msg.Chat.ID, payload)
	}
}

// ingest сохраняет сообщение чата вместе с привязкой потока.
func (h *Handler) ingest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	streamID := streamIDFor(msg.Chat)
	stream := domain.Stream{ID: streamID, Title: msg.Chat.Title}
	if msg.Chat.IsPrivate() {
		stream.UserID = strconv.FormatInt(msg.Chat.ID, 10)
		stream.Title = msg.From.UserName
	} else {
		stream.GroupID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if err := h.streams.UpsertStream(ctx, stream); err != nil {
		h.log.Error().Err(err).Str("stream_id", streamID).Msg("не удалось сохранить поток")
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	rec := domain.Message{
		StreamID:   streamID,
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: senderName(msg.From),
		SentAt:     int64(msg.Date),
		Text:       text,
		IsImage:    len(msg.Photo) > 0,
		IsCommand:  strings.HasPrefix(text, "/"),
	}
	if rec.IsImage {
		rec.ImageRef = msg.Photo[len(msg.Photo)-1].FileID
	}
	rec.FromBot = rec.SenderID == h.botAccountID

	if _, err := h.messages.SaveMessage(ctx, rec); err != nil {
		h.log.Error().Err(err).Str("stream_id", streamID).Msg("не удалось сохранить сообщение")
		return
	}
	metrics.IncIngestedMessage()
}

func (h *Handler) handleDiaryCommand(ctx context.Context, chatID int64, payload string) {
	fields := strings.Fields(payload)
	sub := ""
	if len(fields) > 0 {
		sub = fields[0]
	}

	switch sub {
	case "generate":
		h.handleGenerate(ctx, chatID, fields[1:])
	case "list":
		h.handleList(ctx, chatID, fields[1:])
	case "view":
		h.handleView(ctx, chatID, fields[1:])
	case "debug":
		h.handleDebug(ctx, chatID, fields[1:])
	case "stats":
		h.handleStats(ctx, chatID)
	case "help", "":
		h.reply(chatID, h.buildHelpMessage())
	default:
		h.reply(chatID, "Неизвестная подкоманда. Используйте /diary help")
	}
}

// handleGenerate ставит ручную задачу генерации в очередь. Дата без
// аргумента — сегодняшняя.
func (h *Handler) handleGenerate(ctx context.Context, chatID int64, args []string) {
	date := h.now().Format("2006-01-02")
	if len(args) > 0 {
		parsed, err := diary.ParseDate(args[0])
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Не удалось разобрать дату %q. Допустимые форматы: 2024-01-15, 2024/01/15, 2024.01.15", args[0]))
			return
		}
		date = parsed
	}

	job := domain.DiaryJob{
		ID:          uuid.NewString(),
		Date:        date,
		ChatID:      chatID,
		RequestedAt: h.now(),
		Cause:       domain.DiaryCauseManual,
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("не удалось поставить задачу генерации")
		h.reply(chatID, "Не удалось поставить генерацию в очередь, попробуйте позже")
		return
	}
	h.reply(chatID, fmt.Sprintf("Генерация дневника за %s поставлена в очередь, результат придёт сюда", date))
}

// handleList показывает даты с записями либо все попытки за конкретную дату.
func (h *Handler) handleList(ctx context.Context, chatID int64, args []string) {
	if len(args) > 0 && args[0] != "all" {
		date, err := diary.ParseDate(args[0])
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Не удалось разобрать дату %q", args[0]))
			return
		}
		records, err := h.diaries.DiariesByDate(ctx, date)
		if err != nil {
			h.log.Error().Err(err).Str("date", date).Msg("не удалось получить записи")
			h.reply(chatID, "Не удалось получить записи, попробуйте позже")
			return
		}
		if len(records) == 0 {
			h.reply(chatID, fmt.Sprintf("За %s записей нет", date))
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Попытки за %s:\n", date)
		for i, rec := range records {
			fmt.Fprintf(&b, "%d. %s — %s, %d字\n", i+1, rec.TimeKey, rec.Status, rec.WordCount)
		}
		h.reply(chatID, b.String())
		return
	}

	dates, err := h.diaries.ListDiaryDates(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить даты дневников")
		h.reply(chatID, "Не удалось получить список, попробуйте позже")
		return
	}
	if len(dates) == 0 {
		h.reply(chatID, "Дневников пока нет")
		return
	}
	const maxListed = 30
	if len(dates) > maxListed {
		dates = dates[:maxListed]
	}
	h.reply(chatID, "Даты с дневниками:\n"+strings.Join(dates, "\n"))
}

// handleView показывает последнюю запись за дату либо попытку по номеру
// из /diary list.
func (h *Handler) handleView(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		h.reply(chatID, "Укажите дату: /diary view 2024-01-15 [номер]")
		return
	}
	date, err := diary.ParseDate(args[0])
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось разобрать дату %q", args[0]))
		return
	}

	var rec domain.DiaryRecord
	if len(args) > 1 {
		index, convErr := strconv.Atoi(args[1])
		if convErr != nil || index < 1 {
			h.reply(chatID, "Номер попытки должен быть положительным числом")
			return
		}
		records, listErr := h.diaries.DiariesByDate(ctx, date)
		if listErr != nil {
			h.log.Error().Err(listErr).Str("date", date).Msg("не удалось получить записи")
			h.reply(chatID, "Не удалось получить запись, попробуйте позже")
			return
		}
		if index > len(records) {
			h.reply(chatID, fmt.Sprintf("За %s всего %d попыток", date, len(records)))
			return
		}
		rec = records[index-1]
	} else {
		rec, err = h.diaries.LatestDiary(ctx, date)
		if errors.Is(err, domain.ErrDiaryNotFound) {
			h.reply(chatID, fmt.Sprintf("За %s записей нет", date))
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("date", date).Msg("не удалось получить запись")
			h.reply(chatID, "Не удалось получить запись, попробуйте позже")
			return
		}
	}

	h.reply(chatID, formatDiary(rec))
}

// handleDebug прогоняет пайплайн без модели и показывает сводку.
func (h *Handler) handleDebug(ctx context.Context, chatID int64, args []string) {
	date := h.now().Format("2006-01-02")
	if len(args) > 0 {
		parsed, err := diary.ParseDate(args[0])
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Не удалось разобрать дату %q", args[0]))
			return
		}
		date = parsed
	}

	report, err := h.diaryUC.Debug(ctx, date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("отладочный прогон не удался")
		h.reply(chatID, "Отладочный прогон не удался, попробуйте позже")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Отладка за %s:\n", report.Date)
	fmt.Fprintf(&b, "Область чатов: %s (%d потоков)\n", report.Scope.Kind, len(report.Scope.StreamIDs))
	fmt.Fprintf(&b, "Сообщений: %d, после фильтра тихих чатов: %d\n", report.TotalMessages, report.FilteredMessages)
	fmt.Fprintf(&b, "От бота: %d, от пользователей: %d\n", report.Stats.BotMessages, report.Stats.UserMessages)
	if len(report.Speakers) > 0 {
		names := make([]string, 0, len(report.Speakers))
		for name := range report.Speakers {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return report.Speakers[names[i]] > report.Speakers[names[j]] })
		const maxSpeakers = 5
		if len(names) > maxSpeakers {
			names = names[:maxSpeakers]
		}
		b.WriteString("Активность:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %s — %d\n", name, report.Speakers[name])
		}
	}
	fmt.Fprintf(&b, "Оценка токенов хроники: %d\n", report.TokenEstimate)
	fmt.Fprintf(&b, "Погода: %s", report.Weather)
	h.reply(chatID, b.String())
}

// handleStats показывает агрегатную сводку по всем дневникам.
func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	stats, err := h.diaries.DiaryStats(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить сводку")
		h.reply(chatID, "Не удалось получить сводку, попробуйте позже")
		return
	}
	if stats.TotalDiaries == 0 {
		h.reply(chatID, "Дневников пока нет")
		return
	}
	avg := stats.TotalWords / stats.TotalDiaries
	h.reply(chatID, fmt.Sprintf("Всего дневников: %d\nВсего иероглифов: %d\nСредняя длина: %d\nПоследняя дата: %s",
		stats.TotalDiaries, stats.TotalWords, avg, stats.LastDate))
}

func (h *Handler) buildHelpMessage() string {
	return strings.Join([]string{
		"Команды дневника:",
		"/diary generate [дата] — сгенерировать дневник за дату (по умолчанию сегодня)",
		"/diary list [дата|all] — даты с записями или попытки за дату",
		"/diary view <дата> [номер] — показать запись",
		"/diary debug [дата] — сводка пайплайна без генерации",
		"/diary stats — общая статистика",
		"Форматы даты: 2024-01-15, 2024/01/15, 2024.01.15",
	}, "\n")
}

// reply отправляет ответ по частям и записывает собственные реплики бота в
// хранилище: они тоже участвуют в хронике дня.
func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		sent, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			metrics.IncBotSendError()
			return
		}

		rec := domain.Message{
			StreamID: "tg:" + strconv.FormatInt(chatID, 10),
			SenderID: h.botAccountID,
			SentAt:   int64(sent.Date),
			Text:     part,
			FromBot:  true,
		}
		if _, err := h.messages.SaveMessage(context.Background(), rec); err != nil {
			h.log.Error().Err(err).Int64("chat_id", chatID).Msg("не удалось сохранить реплику бота")
		}
	}
}

// formatDiary собирает карточку записи для ответа в чат.
func formatDiary(rec domain.DiaryRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📖 %s (%s)\n\n", rec.Date, rec.Weather)
	if rec.Content != "" {
		b.WriteString(rec.Content)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Статус: %s", rec.Status)
	if rec.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n%s", rec.ErrorMessage)
	}
	if rec.WordCount > 0 {
		fmt.Fprintf(&b, "\n%d字", rec.WordCount)
	}
	if rec.Published {
		b.WriteString("\nОпубликовано в QQ空间")
	}
	return b.String()
}

func streamIDFor(chat *tgbotapi.Chat) string {
	return "tg:" + strconv.FormatInt(chat.ID, 10)
}

func senderName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	return user.UserName
}
