// Package repo реализует хранилище сообщений и дневников на Postgres.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.MessageRepo = (*Postgres)(nil)
var _ domain.StreamRepo = (*Postgres)(nil)
var _ domain.ImageRepo = (*Postgres)(nil)
var _ domain.DiaryRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveMessage сохраняет входящее сообщение и возвращает его идентификатор.
func (p *Postgres) SaveMessage(ctx context.Context, msg domain.Message) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO messages (stream_id, sender_id, sender_name, sent_at, text, is_image, image_ref, is_command, from_bot)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		msg.StreamID, msg.SenderID, msg.SenderName, msg.SentAt, msg.Text,
		msg.IsImage, msg.ImageRef, msg.IsCommand, msg.FromBot,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("сохранение сообщения: %w", err)
	}
	return id, nil
}

const messageColumns = "id, stream_id, sender_id, sender_name, sent_at, text, is_image, image_ref, is_command, from_bot"

// MessagesByTime возвращает сообщения всех потоков за полуинтервал [start, end).
func (p *Postgres) MessagesByTime(ctx context.Context, start, end int64, filter domain.FetchFilter) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE sent_at >= $1 AND sent_at < $2 %s
		ORDER BY sent_at`, messageColumns, filterClause(filter)),
		start, end)
	if err != nil {
		return nil, fmt.Errorf("выборка сообщений: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessagesByTimeInStream возвращает сообщения одного потока за полуинтервал [start, end).
func (p *Postgres) MessagesByTimeInStream(ctx context.Context, streamID string, start, end int64, filter domain.FetchFilter) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE stream_id = $1 AND sent_at >= $2 AND sent_at < $3 %s
		ORDER BY sent_at`, messageColumns, filterClause(filter)),
		streamID, start, end)
	if err != nil {
		return nil, fmt.Errorf("выборка сообщений потока: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// filterClause добавляет условия исключения, параметров не вводит.
func filterClause(filter domain.FetchFilter) string {
	clause := ""
	if filter.ExcludeBot {
		clause += " AND NOT from_bot"
	}
	if filter.ExcludeCommands {
		clause += " AND NOT is_command"
	}
	return clause
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.StreamID, &msg.SenderID, &msg.SenderName,
			&msg.SentAt, &msg.Text, &msg.IsImage, &msg.ImageRef, &msg.IsCommand, &msg.FromBot); err != nil {
			return nil, fmt.Errorf("чтение сообщения: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// StreamHasMessages сообщает, есть ли у потока хотя бы одно сообщение.
func (p *Postgres) StreamHasMessages(ctx context.Context, streamID string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE stream_id = $1)`, streamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("проба потока: %w", err)
	}
	return exists, nil
}

// UpsertStream сохраняет или обновляет привязку потока к внешним идентификаторам.
func (p *Postgres) UpsertStream(ctx context.Context, stream domain.Stream) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO streams (stream_id, group_id, user_id, title)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (stream_id) DO UPDATE SET group_id = $2, user_id = $3, title = $4`,
		stream.ID, stream.GroupID, stream.UserID, stream.Title)
	if err != nil {
		return fmt.Errorf("сохранение потока: %w", err)
	}
	return nil
}

// StreamIDByGroup находит поток группового чата по внешнему идентификатору.
func (p *Postgres) StreamIDByGroup(ctx context.Context, groupID string) (string, error) {
	return p.streamIDBy(ctx, "group_id", groupID)
}

// StreamIDByUser находит поток личной переписки по внешнему идентификатору.
func (p *Postgres) StreamIDByUser(ctx context.Context, userID string) (string, error) {
	return p.streamIDBy(ctx, "user_id", userID)
}

func (p *Postgres) streamIDBy(ctx context.Context, column, value string) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var streamID string
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT stream_id FROM streams WHERE %s = $1`, column), value).Scan(&streamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrStreamNotFound
	}
	if err != nil {
		return "", fmt.Errorf("поиск потока: %w", err)
	}
	return streamID, nil
}

// DescriptionByImageID возвращает сохранённое описание изображения.
// Отсутствие описания не считается ошибкой.
func (p *Postgres) DescriptionByImageID(ctx context.Context, imageID string) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var description string
	err := p.pool.QueryRow(ctx,
		`SELECT description FROM image_descriptions WHERE image_id = $1`, imageID).Scan(&description)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("поиск описания изображения: %w", err)
	}
	return description, nil
}

// SaveDescription сохраняет описание изображения, перезаписывая прежнее.
func (p *Postgres) SaveDescription(ctx context.Context, imageID, description string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO image_descriptions (image_id, description)
		VALUES ($1,$2)
		ON CONFLICT (image_id) DO UPDATE SET description = $2`,
		imageID, description)
	if err != nil {
		return fmt.Errorf("сохранение описания изображения: %w", err)
	}
	return nil
}

const diaryColumns = "diary_date, time_key, content, word_count, generated_at, weather, bot_messages, user_messages, status, error_message, published, published_at"

// SaveDiary сохраняет попытку генерации под ключом (дата, ЧЧММСС времени
// генерации) и переписывает агрегатную сводку.
func (p *Postgres) SaveDiary(ctx context.Context, rec domain.DiaryRecord) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if rec.TimeKey == "" {
		rec.TimeKey = time.Unix(rec.GeneratedAt, 0).Format("150405")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO diaries (diary_date, time_key, content, word_count, generated_at, weather, bot_messages, user_messages, status, error_message, published, published_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (diary_date, time_key) DO UPDATE SET
			content = $3, word_count = $4, generated_at = $5, weather = $6,
			bot_messages = $7, user_messages = $8, status = $9, error_message = $10,
			published = $11, published_at = $12`,
		rec.Date, rec.TimeKey, rec.Content, rec.WordCount, rec.GeneratedAt, rec.Weather,
		rec.BotMessages, rec.UserMessages, rec.Status, rec.ErrorMessage, rec.Published, rec.PublishedAt)
	if err != nil {
		return fmt.Errorf("сохранение дневника: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO diary_index (id, total_diaries, total_words, last_date, updated_at)
		SELECT 1, COUNT(*), COALESCE(SUM(word_count), 0), COALESCE(MAX(diary_date), ''), $1 FROM diaries
		ON CONFLICT (id) DO UPDATE SET
			total_diaries = EXCLUDED.total_diaries,
			total_words = EXCLUDED.total_words,
			last_date = EXCLUDED.last_date,
			updated_at = EXCLUDED.updated_at`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("обновление сводки: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

// LatestDiary возвращает последнюю по времени генерации запись за дату.
func (p *Postgres) LatestDiary(ctx context.Context, date string) (domain.DiaryRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	row := p.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM diaries WHERE diary_date = $1
		ORDER BY generated_at DESC LIMIT 1`, diaryColumns), date)
	rec, err := scanDiary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DiaryRecord{}, domain.ErrDiaryNotFound
	}
	if err != nil {
		return domain.DiaryRecord{}, fmt.Errorf("чтение дневника: %w", err)
	}
	return rec, nil
}

// DiariesByDate возвращает все попытки за дату, новые раньше.
func (p *Postgres) DiariesByDate(ctx context.Context, date string) ([]domain.DiaryRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM diaries WHERE diary_date = $1
		ORDER BY generated_at DESC`, diaryColumns), date)
	if err != nil {
		return nil, fmt.Errorf("выборка дневников: %w", err)
	}
	defer rows.Close()

	var out []domain.DiaryRecord
	for rows.Next() {
		rec, err := scanDiary(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение дневника: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListDiaryDates возвращает даты, за которые есть хотя бы одна запись, новые раньше.
func (p *Postgres) ListDiaryDates(ctx context.Context) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT diary_date FROM diaries ORDER BY diary_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("выборка дат: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("чтение даты: %w", err)
		}
		out = append(out, date)
	}
	return out, rows.Err()
}

// DiaryStats возвращает агрегатную сводку.
func (p *Postgres) DiaryStats(ctx context.Context) (domain.DiaryStats, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var stats domain.DiaryStats
	err := p.pool.QueryRow(ctx,
		`SELECT total_diaries, total_words, last_date, updated_at FROM diary_index WHERE id = 1`).
		Scan(&stats.TotalDiaries, &stats.TotalWords, &stats.LastDate, &stats.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DiaryStats{}, nil
	}
	if err != nil {
		return domain.DiaryStats{}, fmt.Errorf("чтение сводки: %w", err)
	}
	return stats, nil
}

type diaryScanner interface {
	Scan(dest ...any) error
}

func scanDiary(row diaryScanner) (domain.DiaryRecord, error) {
	var rec domain.DiaryRecord
	err := row.Scan(&rec.Date, &rec.TimeKey, &rec.Content, &rec.WordCount, &rec.GeneratedAt,
		&rec.Weather, &rec.BotMessages, &rec.UserMessages, &rec.Status, &rec.ErrorMessage,
		&rec.Published, &rec.PublishedAt)
	return rec, err
}
