package diary

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// Ключевые слова эмоциональной окраски. Совпадения считаются по вхождению
// подстроки в склеенный текст дня, каждое слово даёт не больше одного балла.
var (
	happyWords = []string{"哈哈", "笑", "开心", "高兴", "棒", "好", "赞", "爱", "喜欢"}
	sadWords   = []string{"难过", "伤心", "哭", "痛苦", "失望"}
	angryWords = []string{"无语", "醉了", "服了", "烦", "气", "怒"}
	calmWords  = []string{"平静", "安静", "淡定", "还好", "一般"}
)

// fallbackWeather — варианты погоды для дня без сообщений.
var fallbackWeather = []string{
	domain.WeatherSunny,
	domain.WeatherCloudy,
	domain.WeatherOvercast,
	domain.WeatherClearing,
}

var weekdayNames = [7]string{"星期一", "星期二", "星期三", "星期四", "星期五", "星期六", "星期日"}

// WeatherByEmotion выводит погоду дневника из текстов сообщений за день.
// Для пустого дня погода выбирается случайно.
func WeatherByEmotion(messages []domain.Message, rng *rand.Rand) string {
	if len(messages) == 0 {
		return fallbackWeather[rng.Intn(len(fallbackWeather))]
	}

	var day strings.Builder
	for _, msg := range messages {
		day.WriteString(msg.Text)
	}
	text := day.String()

	happy := countMatches(text, happyWords)
	sad := countMatches(text, sadWords)
	angry := countMatches(text, angryWords)
	calm := countMatches(text, calmWords)

	switch {
	case happy >= 2:
		return domain.WeatherSunny
	case happy >= 1:
		return domain.WeatherClearing
	case sad >= 1:
		return domain.WeatherRainy
	case angry >= 1:
		return domain.WeatherOvercast
	case calm >= 1:
		return domain.WeatherCloudy
	default:
		return domain.WeatherCloudy
	}
}

func countMatches(text string, words []string) int {
	count := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			count++
		}
	}
	return count
}

// DateWithWeather форматирует заголовок дневника: дата, день недели и погода.
// Если дата не разбирается, заголовок собирается из сырой строки без дня недели.
func DateWithWeather(date, weather string) string {
	day, err := time.Parse(canonicalDate, date)
	if err != nil {
		return fmt.Sprintf("%s,%s。", date, weather)
	}
	weekday := weekdayNames[(int(day.Weekday())+6)%7]
	return fmt.Sprintf("%d年%d月%d日,%s,%s。", day.Year(), int(day.Month()), day.Day(), weekday, weather)
}
