package diary

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// Fetcher выбирает сообщения за окно времени с учётом области чатов.
// Ошибки отдельных чатов логируются и не прерывают выборку.
type Fetcher struct {
	messages domain.MessageRepo
	log      zerolog.Logger
}

// NewFetcher создаёт выборщик сообщений.
func NewFetcher(messages domain.MessageRepo, log zerolog.Logger) *Fetcher {
	return &Fetcher{messages: messages, log: log}
}

// Fetch возвращает сообщения окна, отсортированные по времени. Для ручного
// запуска выключенная область трактуется как разрешение на все чаты, для
// фонового — как пустая выборка.
func (f *Fetcher) Fetch(ctx context.Context, scope domain.ResolvedScope, window DateWindow, manual bool) []domain.Message {
	kind := scope.Kind
	if kind == domain.ScopeDisabled {
		if !manual {
			return nil
		}
		kind = domain.ScopeAll
	}

	var out []domain.Message
	switch kind {
	case domain.ScopeAll:
		all, err := f.messages.MessagesByTime(ctx, window.Start, window.End, domain.FetchFilter{})
		if err != nil {
			f.log.Error().Err(err).Msg("не удалось выбрать сообщения за окно")
			return nil
		}
		out = all
	case domain.ScopeOnly:
		for _, streamID := range scope.StreamIDs {
			msgs, err := f.messages.MessagesByTimeInStream(ctx, streamID, window.Start, window.End, domain.FetchFilter{})
			if err != nil {
				f.log.Warn().Err(err).Str("stream_id", streamID).Msg("чат пропущен при выборке")
				continue
			}
			out = append(out, msgs...)
		}
	case domain.ScopeAllExcept:
		all, err := f.messages.MessagesByTime(ctx, window.Start, window.End, domain.FetchFilter{})
		if err != nil {
			f.log.Error().Err(err).Msg("не удалось выбрать сообщения за окно")
			return nil
		}
		excluded := make(map[string]struct{}, len(scope.StreamIDs))
		for _, streamID := range scope.StreamIDs {
			excluded[streamID] = struct{}{}
		}
		for _, msg := range all {
			if _, skip := excluded[msg.StreamID]; !skip {
				out = append(out, msg)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt < out[j].SentAt })
	return out
}

// FilterQuietChats отбрасывает чаты, в которых за день накопилось меньше
// minPerChat сообщений. Порог меньше единицы отключает фильтр. Итог снова
// отсортирован по времени.
func FilterQuietChats(messages []domain.Message, minPerChat int) []domain.Message {
	if minPerChat <= 0 || len(messages) == 0 {
		return messages
	}

	grouped := make(map[string][]domain.Message)
	for _, msg := range messages {
		grouped[msg.StreamID] = append(grouped[msg.StreamID], msg)
	}

	var out []domain.Message
	for _, msgs := range grouped {
		if len(msgs) >= minPerChat {
			out = append(out, msgs...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt < out[j].SentAt })
	return out
}
