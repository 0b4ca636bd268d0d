package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// RedisDiaryQueue реализует очередь задач генерации на базе Redis lists.
type RedisDiaryQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDiaryQueue создаёт очередь по указанному ключу.
func NewRedisDiaryQueue(client *redis.Client, key string) *RedisDiaryQueue {
	return &RedisDiaryQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisDiaryQueue) Enqueue(ctx context.Context, job domain.DiaryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение с success=false
// возвращает задачу в начало очереди.
func (q *RedisDiaryQueue) Receive(ctx context.Context) (domain.DiaryJob, domain.DiaryAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DiaryJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DiaryJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DiaryJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.DiaryJob{}, nil, errors.New("redis queue: unexpected response")
		}

		payload := []byte(res[1])
		var job domain.DiaryJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return domain.DiaryJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			// BRPop читает с хвоста списка, поэтому возврат в начало
			// очереди — это RPush.
			return q.client.RPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
