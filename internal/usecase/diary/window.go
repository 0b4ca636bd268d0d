package diary

import (
	"fmt"
	"time"
)

// canonicalDate — формат, в котором даты хранятся и сравниваются.
const canonicalDate = "2006-01-02"

// dateFormats — допустимые форматы даты во входных командах.
var dateFormats = []string{canonicalDate, "2006/01/02", "2006.01.02"}

// ParseDate приводит дату из команды к каноническому виду YYYY-MM-DD.
// Нераспознанная строка — явная ошибка, молчаливой подмены на сегодня нет.
func ParseDate(raw string) (string, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(canonicalDate), nil
		}
	}
	return "", fmt.Errorf("нераспознанный формат даты: %q", raw)
}

// DateWindow — полуинтервал времени [Start, End) в секундах unix.
type DateWindow struct {
	Start int64
	End   int64
}

// WindowForDate строит окно выборки сообщений за дату. Начало — местная
// полночь. Для сегодняшней даты окно заканчивается текущим моментом,
// для прошедших — следующей полночью.
func WindowForDate(date string, now time.Time) (DateWindow, error) {
	day, err := time.ParseInLocation(canonicalDate, date, now.Location())
	if err != nil {
		return DateWindow{}, fmt.Errorf("разбор даты %q: %w", date, err)
	}
	start := day.Unix()
	if now.Format(canonicalDate) == date {
		return DateWindow{Start: start, End: now.Unix()}, nil
	}
	return DateWindow{Start: start, End: day.AddDate(0, 0, 1).Unix()}, nil
}
