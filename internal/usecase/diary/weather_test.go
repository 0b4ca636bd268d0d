package diary

import (
	"math/rand"
	"testing"

	"github.com/magisk317/diary-plugin/internal/domain"
)

func textMessages(texts ...string) []domain.Message {
	msgs := make([]domain.Message, 0, len(texts))
	for i, text := range texts {
		msgs = append(msgs, domain.Message{ID: int64(i + 1), Text: text})
	}
	return msgs
}

func TestWeatherByEmotionRules(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		name  string
		texts []string
		want  string
	}{
		{"два радостных слова дают солнце", []string{"哈哈太好笑了", "今天很开心"}, domain.WeatherSunny},
		{"одно радостное слово", []string{"今天很开心"}, domain.WeatherClearing},
		{"грусть перевешивает", []string{"有点难过"}, domain.WeatherRainy},
		{"раздражение", []string{"真的无语了"}, domain.WeatherOvercast},
		{"спокойный день", []string{"大家都很淡定"}, domain.WeatherCloudy},
		{"нейтральный текст", []string{"明天见"}, domain.WeatherCloudy},
	}
	for _, tc := range cases {
		if got := WeatherByEmotion(textMessages(tc.texts...), rng); got != tc.want {
			t.Fatalf("%s: ожидали %q, получили %q", tc.name, tc.want, got)
		}
	}
}

func TestWeatherByEmotionCountsKeywordOncePerDay(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	// Одно и то же слово в нескольких сообщениях даёт один балл.
	repeated := textMessages("今天很开心", "也很开心", "非常开心")
	if got := WeatherByEmotion(repeated, rng); got != domain.WeatherClearing {
		t.Fatalf("повтор слова не должен накапливать баллы: ожидали %q, получили %q", domain.WeatherClearing, got)
	}

	// Разные слова из разных сообщений складываются.
	split := textMessages("今天很开心", "哈哈哈")
	if got := WeatherByEmotion(split, rng); got != domain.WeatherSunny {
		t.Fatalf("разные слова должны считаться по всему дню: ожидали %q, получили %q", domain.WeatherSunny, got)
	}
}

func TestWeatherByEmotionEmptyDayIsRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	allowed := map[string]bool{
		domain.WeatherSunny:    true,
		domain.WeatherCloudy:   true,
		domain.WeatherOvercast: true,
		domain.WeatherClearing: true,
	}
	for i := 0; i < 20; i++ {
		if got := WeatherByEmotion(nil, rng); !allowed[got] {
			t.Fatalf("недопустимая погода для пустого дня: %q", got)
		}
	}
}

func TestDateWithWeather(t *testing.T) {
	// 2025-06-18 — среда.
	got := DateWithWeather("2025-06-18", domain.WeatherSunny)
	want := "2025年6月18日,星期三,晴。"
	if got != want {
		t.Fatalf("ожидали %q, получили %q", want, got)
	}
}

func TestDateWithWeatherBrokenDate(t *testing.T) {
	got := DateWithWeather("не дата", domain.WeatherRainy)
	if got != "не дата,雨。" {
		t.Fatalf("ожидали заголовок без дня недели, получили %q", got)
	}
}
