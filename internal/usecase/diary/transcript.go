package diary

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
)

const (
	// emptyTimeline возвращается вместо хроники, если за день не было сообщений.
	emptyTimeline = "今天没有什么特别的对话。"
	// maxLineRunes — предел длины одной реплики в хронике.
	maxLineRunes = 50
	// imagePlaceholder — описание-заглушка, которое не несёт информации и отбрасывается.
	imagePlaceholder = "[图片]"
)

// picIDPattern извлекает идентификатор изображения, встроенный в текст сообщения.
var picIDPattern = regexp.MustCompile(`\[picid:([a-f0-9\-]+)\]`)

// Builder собирает хронику дня из сообщений: реплики в хронологическом
// порядке с заголовками при смене часа.
type Builder struct {
	botID  string
	images domain.ImageRepo
	log    zerolog.Logger
}

// NewBuilder создаёт сборщик хроники. botID отличает реплики бота от чужих.
func NewBuilder(botID string, images domain.ImageRepo, log zerolog.Logger) *Builder {
	return &Builder{botID: botID, images: images, log: log}
}

// Build строит текст хроники и счётчики участия. Пустой список сообщений
// даёт текст-заглушку и нулевые счётчики.
func (b *Builder) Build(ctx context.Context, messages []domain.Message) (string, domain.TranscriptStats) {
	if len(messages) == 0 {
		return emptyTimeline, domain.TranscriptStats{}
	}

	ordered := make([]domain.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SentAt < ordered[j].SentAt })

	var (
		parts    []string
		lastHour = -1
		stats    domain.TranscriptStats
	)
	for _, msg := range ordered {
		sent := time.Unix(msg.SentAt, 0)
		if hour := sent.Hour(); hour != lastHour {
			parts = append(parts, fmt.Sprintf("\n【%s】", hourLabel(hour)))
			lastHour = hour
		}

		speaker := b.speakerName(msg)
		if msg.SenderID == b.botID {
			stats.BotMessages++
		} else {
			stats.UserMessages++
		}

		if msg.IsImage {
			parts = append(parts, fmt.Sprintf("%s: %s%s", speaker, imagePlaceholder, b.imageDescription(ctx, msg, speaker)))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", speaker, clipLine(msg.Text)))
		}
	}

	stats.Total = len(ordered)
	if stats.BotMessages+stats.UserMessages != stats.Total {
		b.log.Warn().
			Int("total", stats.Total).
			Int("bot", stats.BotMessages).
			Int("users", stats.UserMessages).
			Msg("счётчики участия не сходятся с общим числом сообщений")
	}
	return strings.Join(parts, "\n"), stats
}

// hourLabel переводит час в метку времени суток: утро 6-11, день 12-17,
// остальное считается вечером.
func hourLabel(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return fmt.Sprintf("上午%d点", hour)
	case hour >= 12 && hour < 18:
		return fmt.Sprintf("下午%d点", hour)
	default:
		return fmt.Sprintf("晚上%d点", hour)
	}
}

func (b *Builder) speakerName(msg domain.Message) string {
	if msg.SenderID == b.botID {
		return "我"
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return "某人"
}

// imageDescription подбирает описание изображения по цепочке идентификаторов:
// ключ внутри текста, идентификатор самого сообщения, затем явная ссылка.
// Описание-заглушка и пустое описание считаются промахом. Если описания нет
// нигде, подставляется обезличенная фраза.
func (b *Builder) imageDescription(ctx context.Context, msg domain.Message, speaker string) string {
	var keys []string
	if m := picIDPattern.FindStringSubmatch(msg.Text); m != nil {
		keys = append(keys, m[1])
	}
	if msg.ID != 0 {
		keys = append(keys, strconv.FormatInt(msg.ID, 10))
	}
	if msg.ImageRef != "" {
		keys = append(keys, msg.ImageRef)
	}

	for _, key := range keys {
		desc, err := b.images.DescriptionByImageID(ctx, key)
		if err != nil {
			b.log.Warn().Err(err).Str("image_id", key).Msg("не удалось получить описание изображения")
			continue
		}
		desc = strings.TrimSpace(desc)
		if desc != "" && desc != imagePlaceholder {
			return desc
		}
	}

	if speaker != "某人" && speaker != "我" {
		return fmt.Sprintf("%s分享的图片", speaker)
	}
	return "用户分享的图片"
}

// clipLine укорачивает реплику до предела хроники.
func clipLine(text string) string {
	runes := []rune(text)
	if len(runes) <= maxLineRunes {
		return text
	}
	return string(runes[:maxLineRunes]) + "..."
}
