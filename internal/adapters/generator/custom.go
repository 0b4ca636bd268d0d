// Package generator содержит две реализации вызова LLM: пользовательская
// модель с собственным API-ключом и модель хоста по умолчанию.
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

// contextSafetyMargin — запас токенов под промпт и ответ при расчёте
// бюджета хроники из размера контекста модели.
const contextSafetyMargin = 2000

// placeholderKeys — ключи-заглушки из файлов конфигурации по умолчанию.
// Такой ключ означает, что пользователь модель не настроил.
var placeholderKeys = map[string]struct{}{
	"your-rinko-key-here":          {},
	"sk-your-siliconflow-key-here": {},
}

// CustomConfig — настройки пользовательской модели.
type CustomConfig struct {
	APIURL         string
	APIKey         string
	Name           string
	Temperature    float64
	TimeoutSeconds int
	MaxContextK    int
}

// Custom вызывает пользовательскую модель одним запросом без повторов.
type Custom struct {
	cfg    CustomConfig
	client *openai.Client
	log    zerolog.Logger
}

var _ domain.Generator = (*Custom)(nil)

// NewCustom создаёт генератор. Значения вне допустимых диапазонов
// заменяются умолчаниями с предупреждением в логе.
func NewCustom(cfg CustomConfig, log zerolog.Logger) *Custom {
	if cfg.TimeoutSeconds < 1 || cfg.TimeoutSeconds > 6000 {
		log.Warn().Int("timeout", cfg.TimeoutSeconds).Msg("таймаут пользовательской модели вне диапазона, берём 300 секунд")
		cfg.TimeoutSeconds = 300
	}
	if cfg.MaxContextK < 1 || cfg.MaxContextK > 10000 {
		log.Warn().Int("max_context_k", cfg.MaxContextK).Msg("размер контекста вне диапазона, берём 256k")
		cfg.MaxContextK = 256
	}
	client := openai.NewClient(cfg.APIKey, cfg.APIURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
	return &Custom{cfg: cfg, client: client, log: log}
}

// Generate выполняет один запрос к пользовательской модели. Хроника,
// не влезающая в контекст модели, предварительно урезается, причём и в
// тексте промпта тоже.
func (g *Custom) Generate(ctx context.Context, prompt, transcript string, cause domain.DiaryJobCause) (bool, string) {
	if !g.configured() {
		return false, "自定义模型API密钥未配置"
	}

	budget := g.cfg.MaxContextK*1000 - contextSafetyMargin
	if diary.EstimateTokens(transcript) > budget {
		truncated := diary.TruncateToBudget(transcript, budget)
		prompt = strings.Replace(prompt, transcript, truncated, 1)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Name,
		Messages:    []openai.ChatMessage{{Role: openai.RoleUser, Content: prompt}},
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		g.log.Error().Err(err).Str("model", g.cfg.Name).Msg("пользовательская модель не ответила")
		return false, fmt.Sprintf("自定义模型调用出错: %v", err)
	}
	if len(resp.Choices) == 0 {
		return false, "模型返回的响应为空"
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return false, "模型返回的响应为空"
	}
	return true, content
}

// configured проверяет, что ключ задан и не является заглушкой.
func (g *Custom) configured() bool {
	key := strings.TrimSpace(g.cfg.APIKey)
	if key == "" {
		return false
	}
	_, placeholder := placeholderKeys[key]
	return !placeholder
}
