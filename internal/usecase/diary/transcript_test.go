package diary

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
)

type stubImages struct {
	descriptions map[string]string
	requested    []string
}

func (s *stubImages) DescriptionByImageID(_ context.Context, imageID string) (string, error) {
	s.requested = append(s.requested, imageID)
	return s.descriptions[imageID], nil
}

func (s *stubImages) SaveDescription(context.Context, string, string) error { return nil }

func sentAt(hour, minute int) int64 {
	return time.Date(2025, 6, 18, hour, minute, 0, 0, time.Local).Unix()
}

func newTestBuilder(images *stubImages) *Builder {
	if images == nil {
		images = &stubImages{}
	}
	return NewBuilder("10001", images, zerolog.Nop())
}

func TestBuildEmptyDay(t *testing.T) {
	text, stats := newTestBuilder(nil).Build(context.Background(), nil)
	if text != emptyTimeline {
		t.Fatalf("ожидали заглушку пустого дня, получили %q", text)
	}
	if stats.Total != 0 || stats.BotMessages != 0 || stats.UserMessages != 0 {
		t.Fatalf("счётчики пустого дня должны быть нулевыми: %+v", stats)
	}
}

func TestBuildOrdersAndLabelsSpeakers(t *testing.T) {
	messages := []domain.Message{
		{ID: 2, SenderID: "20002", SenderName: "小明", SentAt: sentAt(9, 20), Text: "早上好"},
		{ID: 1, SenderID: "10001", SentAt: sentAt(9, 5), Text: "大家早"},
		{ID: 3, SenderID: "30003", SentAt: sentAt(9, 40), Text: "早"},
	}
	text, stats := newTestBuilder(nil).Build(context.Background(), messages)

	want := "\n【上午9点】\n我: 大家早\n小明: 早上好\n某人: 早"
	if text != want {
		t.Fatalf("ожидали %q, получили %q", want, text)
	}
	if stats.Total != 3 || stats.BotMessages != 1 || stats.UserMessages != 2 {
		t.Fatalf("неверные счётчики участия: %+v", stats)
	}
}

func TestBuildHourHeaders(t *testing.T) {
	messages := []domain.Message{
		{ID: 1, SenderID: "20002", SenderName: "小明", SentAt: sentAt(8, 0), Text: "一"},
		{ID: 2, SenderID: "20002", SenderName: "小明", SentAt: sentAt(8, 30), Text: "二"},
		{ID: 3, SenderID: "20002", SenderName: "小明", SentAt: sentAt(14, 0), Text: "三"},
		{ID: 4, SenderID: "20002", SenderName: "小明", SentAt: sentAt(23, 0), Text: "四"},
	}
	text, _ := newTestBuilder(nil).Build(context.Background(), messages)

	for _, header := range []string{"【上午8点】", "【下午14点】", "【晚上23点】"} {
		if !strings.Contains(text, header) {
			t.Fatalf("нет заголовка %q в хронике:\n%s", header, text)
		}
	}
	if strings.Count(text, "【") != 3 {
		t.Fatalf("заголовок должен появляться только при смене часа:\n%s", text)
	}
}

func TestBuildClipsLongLines(t *testing.T) {
	long := strings.Repeat("啊", 80)
	messages := []domain.Message{{ID: 1, SenderID: "20002", SenderName: "小明", SentAt: sentAt(10, 0), Text: long}}
	text, _ := newTestBuilder(nil).Build(context.Background(), messages)

	if !strings.Contains(text, strings.Repeat("啊", 50)+"...") {
		t.Fatalf("длинная реплика должна быть укорочена:\n%s", text)
	}
	if strings.Contains(text, strings.Repeat("啊", 51)) {
		t.Fatalf("реплика длиннее предела")
	}
}

func TestBuildImageDescriptionByPicID(t *testing.T) {
	images := &stubImages{descriptions: map[string]string{"ab12-cd34": "一只橘猫"}}
	messages := []domain.Message{{
		ID: 5, SenderID: "20002", SenderName: "小明", SentAt: sentAt(10, 0),
		Text: "[picid:ab12-cd34]", IsImage: true,
	}}
	text, _ := newTestBuilder(images).Build(context.Background(), messages)

	if !strings.Contains(text, "小明: [图片]一只橘猫") {
		t.Fatalf("нет описания изображения в хронике:\n%s", text)
	}
	if images.requested[0] != "ab12-cd34" {
		t.Fatalf("ключ из текста должен проверяться первым, запросы: %v", images.requested)
	}
}

func TestBuildImageFallbackChain(t *testing.T) {
	// Ключа в тексте нет, по идентификатору сообщения лежит заглушка,
	// описание находится только по явной ссылке.
	images := &stubImages{descriptions: map[string]string{
		"5":      "[图片]",
		"ref-99": "海边的照片",
	}}
	messages := []domain.Message{{
		ID: 5, SenderID: "20002", SenderName: "小明", SentAt: sentAt(10, 0),
		IsImage: true, ImageRef: "ref-99",
	}}
	text, _ := newTestBuilder(images).Build(context.Background(), messages)

	if !strings.Contains(text, "小明: [图片]海边的照片") {
		t.Fatalf("ожидали описание по явной ссылке:\n%s", text)
	}
}

func TestBuildImageWithoutDescription(t *testing.T) {
	messages := []domain.Message{
		{ID: 5, SenderID: "20002", SenderName: "小明", SentAt: sentAt(10, 0), IsImage: true},
		{ID: 6, SenderID: "30003", SentAt: sentAt(10, 1), IsImage: true},
	}
	text, _ := newTestBuilder(nil).Build(context.Background(), messages)

	if !strings.Contains(text, "小明: [图片]小明分享的图片") {
		t.Fatalf("для известного отправителя ожидали именную фразу:\n%s", text)
	}
	if !strings.Contains(text, "某人: [图片]用户分享的图片") {
		t.Fatalf("для безымянного отправителя ожидали обезличенную фразу:\n%s", text)
	}
}
