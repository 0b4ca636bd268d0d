package diary

import (
	"strings"
	"testing"
	"time"
)

func TestParseDateFormats(t *testing.T) {
	cases := map[string]string{
		"2025-01-09": "2025-01-09",
		"2025/01/09": "2025-01-09",
		"2025.01.09": "2025-01-09",
	}
	for raw, want := range cases {
		got, err := ParseDate(raw)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ожидали %q, получили %q", want, got)
		}
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "вчера", "09.01.2025", "2025-13-40"} {
		if _, err := ParseDate(raw); err == nil {
			t.Fatalf("ожидали ошибку для %q", raw)
		} else if !strings.Contains(err.Error(), "формат даты") {
			t.Fatalf("неожиданный текст ошибки: %v", err)
		}
	}
}

func TestWindowForPastDate(t *testing.T) {
	now := time.Date(2025, 6, 20, 15, 30, 0, 0, time.Local)
	window, err := WindowForDate("2025-06-18", now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	wantStart := time.Date(2025, 6, 18, 0, 0, 0, 0, time.Local).Unix()
	wantEnd := time.Date(2025, 6, 19, 0, 0, 0, 0, time.Local).Unix()
	if window.Start != wantStart || window.End != wantEnd {
		t.Fatalf("окно [%d, %d), ожидали [%d, %d)", window.Start, window.End, wantStart, wantEnd)
	}
}

func TestWindowForTodayEndsNow(t *testing.T) {
	now := time.Date(2025, 6, 20, 15, 30, 0, 0, time.Local)
	window, err := WindowForDate("2025-06-20", now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if window.Start != time.Date(2025, 6, 20, 0, 0, 0, 0, time.Local).Unix() {
		t.Fatalf("начало окна не в полночь: %d", window.Start)
	}
	if window.End != now.Unix() {
		t.Fatalf("окно сегодняшнего дня должно заканчиваться текущим моментом")
	}
}

func TestWindowForDateRejectsBrokenDate(t *testing.T) {
	if _, err := WindowForDate("20-06-2025", time.Now()); err == nil {
		t.Fatalf("ожидали ошибку для неканонической даты")
	}
}
