// Package publisher отправляет готовый дневник во внешний мост QQ空间.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/metrics"
)

// Bridge публикует записи через HTTP API моста.
type Bridge struct {
	client  *http.Client
	baseURL string
	token   string
	log     zerolog.Logger
}

var _ domain.Publisher = (*Bridge)(nil)

// NewBridge создаёт клиента моста.
func NewBridge(baseURL, token string, log zerolog.Logger) *Bridge {
	return &Bridge{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		log:     log,
	}
}

// Publish отправляет текст дневника. Отказ авторизации и недоступность сети
// возвращаются различимыми ошибками.
func (b *Bridge) Publish(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("сериализация записи: %w", err)
	}

	endpoint := b.baseURL + "/send_qzone"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("сборка запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	metrics.ObserveNetworkRequest("qzone_bridge", "send", "qzone", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublishUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.ErrPublishAuth
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("мост вернул статус %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
