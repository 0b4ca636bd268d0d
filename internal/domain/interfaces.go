package domain

import (
	"context"
	"errors"
	"time"
)

// ErrStreamNotFound возвращается, когда чат из конфигурации не найден в хранилище.
var ErrStreamNotFound = errors.New("поток не найден")

// ErrDiaryNotFound возвращается, когда за дату нет ни одной записи дневника.
var ErrDiaryNotFound = errors.New("дневник не найден")

// Ошибки публикации. Сервис различает их, чтобы записать причину сбоя в запись дневника.
var (
	// ErrPublishAuth — мост отклонил публикацию, вероятно истекли cookie.
	ErrPublishAuth = errors.New("публикация отклонена, авторизация недействительна")
	// ErrPublishUnavailable — мост недоступен по сети.
	ErrPublishUnavailable = errors.New("мост публикации недоступен")
)

// FetchFilter управляет исключением сообщений при выборке из хранилища.
// Нулевое значение означает полную выборку, включая сообщения бота и команды.
type FetchFilter struct {
	ExcludeBot      bool
	ExcludeCommands bool
}

// MessageRepo управляет сообщениями чатов.
type MessageRepo interface {
	SaveMessage(ctx context.Context, msg Message) (int64, error)
	MessagesByTime(ctx context.Context, start, end int64, filter FetchFilter) ([]Message, error)
	MessagesByTimeInStream(ctx context.Context, streamID string, start, end int64, filter FetchFilter) ([]Message, error)
	// StreamHasMessages служит пробой живости потока при разрешении конфигурации чатов.
	StreamHasMessages(ctx context.Context, streamID string) (bool, error)
}

// StreamRepo управляет потоками чатов и их привязкой к внешним идентификаторам.
type StreamRepo interface {
	UpsertStream(ctx context.Context, stream Stream) error
	StreamIDByGroup(ctx context.Context, groupID string) (string, error)
	StreamIDByUser(ctx context.Context, userID string) (string, error)
}

// ImageRepo возвращает сохранённые описания изображений.
// Отсутствующее описание не считается ошибкой: возвращается пустая строка.
type ImageRepo interface {
	DescriptionByImageID(ctx context.Context, imageID string) (string, error)
	SaveDescription(ctx context.Context, imageID, description string) error
}

// DiaryRepo сохраняет и возвращает записи дневника.
// SaveDiary перезаписывает запись с тем же ключом (дата, время генерации)
// и после каждого сохранения переписывает агрегатную сводку.
type DiaryRepo interface {
	SaveDiary(ctx context.Context, rec DiaryRecord) error
	LatestDiary(ctx context.Context, date string) (DiaryRecord, error)
	DiariesByDate(ctx context.Context, date string) ([]DiaryRecord, error)
	ListDiaryDates(ctx context.Context) ([]string, error)
	DiaryStats(ctx context.Context) (DiaryStats, error)
}

// Publisher отправляет готовый дневник во внешний сервис.
type Publisher interface {
	Publish(ctx context.Context, content string) error
}

// Generator выполняет один запрос к LLM и возвращает либо текст дневника,
// либо человекочитаемую причину отказа. Повторов нет: единственная неудачная
// попытка завершает запуск.
type Generator interface {
	Generate(ctx context.Context, prompt, transcript string, cause DiaryJobCause) (ok bool, text string)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
