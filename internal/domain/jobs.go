package domain

import (
	"context"
	"time"
)

// DiaryJobCause описывает источник запроса на генерацию дневника.
type DiaryJobCause string

const (
	// DiaryCauseManual — пользователь запросил генерацию командой.
	DiaryCauseManual DiaryJobCause = "manual"
	// DiaryCauseScheduled — генерация запланирована по расписанию.
	DiaryCauseScheduled DiaryJobCause = "scheduled"
)

// DiaryJob содержит параметры одной задачи генерации дневника.
// ChatID заполняется для ручных запусков: туда отправляется результат.
type DiaryJob struct {
	ID          string        `json:"job_id,omitempty"`
	Date        string        `json:"date"`
	ChatID      int64         `json:"chat_id,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	Cause       DiaryJobCause `json:"cause"`
}

// DiaryQueue описывает очередь задач генерации. Задачи обрабатывает один
// потребитель, поэтому два запуска пайплайна никогда не идут одновременно.
type DiaryQueue interface {
	Enqueue(ctx context.Context, job DiaryJob) error
	Receive(ctx context.Context) (DiaryJob, DiaryAckFunc, error)
}

// DiaryAckFunc подтверждает обработку или запрашивает повторную доставку задачи.
type DiaryAckFunc func(success bool) error
