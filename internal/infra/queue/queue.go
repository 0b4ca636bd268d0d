// Package queue содержит реализации очереди задач генерации дневника.
package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// New создаёт очередь согласно конфигурации: redis или rabbitmq.
func New(backend, key, amqpURL, redisAddr string) (domain.DiaryQueue, error) {
	switch backend {
	case "rabbitmq":
		return NewRabbitDiaryQueue(amqpURL, key)
	case "redis", "":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return NewRedisDiaryQueue(client, key), nil
	default:
		return nil, fmt.Errorf("неизвестный бэкенд очереди: %q", backend)
	}
}
