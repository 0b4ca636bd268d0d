package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
	"github.com/magisk317/diary-plugin/internal/infra/openai"
	"github.com/magisk317/diary-plugin/internal/usecase/diary"
)

// ReplyerModelName — логическое имя модели ответов в каталоге хоста.
const ReplyerModelName = "replyer"

// ModelConfig — описание одной модели каталога.
type ModelConfig struct {
	APIURL      string
	APIKey      string
	Name        string
	Temperature float64
}

// HostModel вызывает модель хоста по логическому имени из каталога.
// Хроника урезается под жёсткий потолок токенов, который зависит от
// источника запуска: ручные запросы получают меньший потолок.
type HostModel struct {
	catalog map[string]ModelConfig
	clients map[string]*openai.Client
	log     zerolog.Logger
}

var _ domain.Generator = (*HostModel)(nil)

// NewHostModel создаёт генератор с каталогом логических моделей.
func NewHostModel(catalog map[string]ModelConfig, log zerolog.Logger) *HostModel {
	clients := make(map[string]*openai.Client, len(catalog))
	for name, cfg := range catalog {
		clients[name] = openai.NewClient(cfg.APIKey, cfg.APIURL, 300*time.Second)
	}
	return &HostModel{catalog: catalog, clients: clients, log: log}
}

// Generate выполняет один запрос к модели ответов. Повторов нет.
func (g *HostModel) Generate(ctx context.Context, prompt, transcript string, cause domain.DiaryJobCause) (bool, string) {
	cfg, ok := g.catalog[ReplyerModelName]
	if !ok {
		return false, fmt.Sprintf("未找到默认模型: %s", ReplyerModelName)
	}

	ceiling := domain.TokenLimit126K
	if cause == domain.DiaryCauseManual {
		ceiling = domain.TokenLimit50K
	}
	if diary.EstimateTokens(transcript) > ceiling {
		truncated := diary.TruncateToBudget(transcript, ceiling)
		prompt = strings.Replace(prompt, transcript, truncated, 1)
	}

	resp, err := g.clients[ReplyerModelName].CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cfg.Name,
		Messages:    []openai.ChatMessage{{Role: openai.RoleUser, Content: prompt}},
		Temperature: cfg.Temperature,
	})
	if err != nil {
		g.log.Error().Err(err).Str("model", cfg.Name).Msg("модель хоста не ответила")
		return false, fmt.Sprintf("默认模型调用出错: %v", err)
	}
	if len(resp.Choices) == 0 {
		return false, "默认模型生成日记失败"
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return false, "默认模型生成日记失败"
	}
	return true, content
}
