package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Shanghai"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token string `envconfig:"TG_BOT_TOKEN"`
	} `envconfig:""`

	Bot struct {
		// AccountID — идентификатор аккаунта бота в хранилище сообщений.
		// Реплики этого отправителя попадают в хронику от первого лица.
		AccountID string `envconfig:"BOT_ACCOUNT_ID"`
		Nickname  string `envconfig:"BOT_NICKNAME" default:"麦麦"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queue struct {
		// Backend выбирает реализацию очереди задач: redis или rabbitmq.
		Backend string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Key     string `envconfig:"DIARY_QUEUE_KEY" default:"diary_jobs"`
		AMQPURL string `envconfig:"AMQP_URL"`
	} `envconfig:""`

	Diary struct {
		// ChatMode — whitelist или blacklist. ChatList — элементы вида
		// "group:<id>" и "private:<id>" через запятую.
		ChatMode     string   `envconfig:"DIARY_CHAT_MODE" default:"whitelist"`
		ChatList     []string `envconfig:"DIARY_CHAT_LIST"`
		MinMessages  int      `envconfig:"DIARY_MIN_MESSAGES" default:"3"`
		MinPerChat   int      `envconfig:"DIARY_MIN_PER_CHAT" default:"3"`
		MaxLength    int      `envconfig:"DIARY_MAX_LENGTH" default:"350"`
		CustomPrompt string   `envconfig:"DIARY_CUSTOM_PROMPT"`
	} `envconfig:""`

	Persona struct {
		Core     string `envconfig:"PERSONA_CORE" default:"是一个活泼可爱的AI助手"`
		Style    string `envconfig:"PERSONA_STYLE"`
		Interest string `envconfig:"PERSONA_INTEREST"`
	} `envconfig:""`

	CustomModel struct {
		Enabled        bool    `envconfig:"CUSTOM_MODEL_ENABLED" default:"false"`
		APIURL         string  `envconfig:"CUSTOM_MODEL_API_URL" default:"http://rinkoai.com/v1"`
		APIKey         string  `envconfig:"CUSTOM_MODEL_API_KEY" default:"your-rinko-key-here"`
		Name           string  `envconfig:"CUSTOM_MODEL_NAME" default:"Pro/deepseek-ai/DeepSeek-V3"`
		Temperature    float64 `envconfig:"CUSTOM_MODEL_TEMPERATURE" default:"0.7"`
		TimeoutSeconds int     `envconfig:"CUSTOM_MODEL_TIMEOUT_SECONDS" default:"300"`
		// MaxContextK — размер контекста модели в тысячах токенов.
		MaxContextK int `envconfig:"CUSTOM_MODEL_MAX_CONTEXT_K" default:"256"`
	} `envconfig:""`

	Replyer struct {
		APIURL      string  `envconfig:"REPLYER_API_URL" default:"https://api.openai.com/v1"`
		APIKey      string  `envconfig:"REPLYER_API_KEY"`
		Name        string  `envconfig:"REPLYER_MODEL_NAME" default:"gpt-4o-mini"`
		Temperature float64 `envconfig:"REPLYER_TEMPERATURE" default:"0.7"`
	} `envconfig:""`

	Schedule struct {
		Enabled bool   `envconfig:"SCHEDULE_ENABLED" default:"true"`
		Time    string `envconfig:"SCHEDULE_TIME" default:"23:30"`
	} `envconfig:""`

	Publish struct {
		Enabled   bool   `envconfig:"QZONE_PUBLISH_ENABLED" default:"false"`
		BridgeURL string `envconfig:"QZONE_BRIDGE_URL" default:"http://127.0.0.1:5000"`
		Token     string `envconfig:"QZONE_BRIDGE_TOKEN"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
