// Package schedule вычисляет время плановых запусков генерации дневника.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ErrInvalidTime возвращается, если время расписания не в формате HH:MM.
var ErrInvalidTime = errors.New("invalid schedule time")

// Planner вычисляет моменты ежедневного запуска в заданном часовом поясе.
type Planner struct {
	loc    *time.Location
	hour   int
	minute int
}

// NewPlanner создаёт планировщик. at задаётся как "23:30".
func NewPlanner(timezone, at string) (*Planner, error) {
	normalized, err := normalizeTimezone(timezone)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(normalized)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	hour, minute, err := parseClock(at)
	if err != nil {
		return nil, err
	}
	return &Planner{loc: loc, hour: hour, minute: minute}, nil
}

// Next возвращает ближайший момент запуска строго после now.
func (p *Planner) Next(now time.Time) time.Time {
	local := now.In(p.loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), p.hour, p.minute, 0, 0, p.loc)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// DateFor возвращает дату, за которую генерируется дневник при запуске run.
func (p *Planner) DateFor(run time.Time) string {
	return run.In(p.loc).Format("2006-01-02")
}

func parseClock(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(parts[0], "%d", &hour); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minute); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return hour, minute, nil
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
