// Package scope разрешает конфигурацию чатов в конкретные идентификаторы
// потоков сообщений.
package scope

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// Режимы области чатов в конфигурации.
const (
	ModeWhitelist = "whitelist"
	ModeBlacklist = "blacklist"
)

const (
	mappingCacheKey = "diary:chat_mapping"
	mappingCacheTTL = 7 * 24 * time.Hour
)

// Entry — один элемент списка чатов из конфигурации.
type Entry struct {
	ID    string
	Group bool
}

// ParseEntries разбирает строки вида "group:<id>" и "private:<id>".
// Неопознанные строки и дубликаты отбрасываются с предупреждением,
// порядок остальных сохраняется.
func ParseEntries(raw []string, log zerolog.Logger) []Entry {
	seen := make(map[Entry]struct{}, len(raw))
	var out []Entry
	for _, item := range raw {
		var entry Entry
		switch {
		case strings.HasPrefix(item, "group:"):
			entry = Entry{ID: strings.TrimPrefix(item, "group:"), Group: true}
		case strings.HasPrefix(item, "private:"):
			entry = Entry{ID: strings.TrimPrefix(item, "private:")}
		default:
			log.Warn().Str("entry", item).Msg("неопознанный элемент списка чатов")
			continue
		}
		if entry.ID == "" {
			log.Warn().Str("entry", item).Msg("пустой идентификатор чата")
			continue
		}
		if _, dup := seen[entry]; dup {
			log.Warn().Str("entry", item).Msg("дубликат в списке чатов")
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// mappingState — закэшированное соответствие внешних идентификаторов потокам
// вместе с хэшем конфигурации, при которой оно было построено.
type mappingState struct {
	ConfigHash string            `json:"config_hash"`
	Mapping    map[string]string `json:"mapping"`
}

// Selector превращает режим и список чатов в область выборки сообщений.
// Разрешённые идентификаторы кэшируются и переиспользуются, пока конфигурация
// не поменялась и поток отвечает на пробу живости.
type Selector struct {
	streams  domain.StreamRepo
	messages domain.MessageRepo
	cache    domain.Cache
	log      zerolog.Logger
}

// NewSelector создаёт разрешатель области чатов.
func NewSelector(streams domain.StreamRepo, messages domain.MessageRepo, cache domain.Cache, log zerolog.Logger) *Selector {
	return &Selector{streams: streams, messages: messages, cache: cache, log: log}
}

// Resolve возвращает область выборки для режима и списка чатов. Неизвестный
// режим один раз трактуется как whitelist, при повторной неудаче обработка
// разрешается для всех чатов.
func (s *Selector) Resolve(ctx context.Context, mode string, entries []Entry) domain.ResolvedScope {
	for depth := 0; ; depth++ {
		switch mode {
		case ModeWhitelist:
			if len(entries) == 0 {
				return domain.ResolvedScope{Kind: domain.ScopeDisabled}
			}
			return domain.ResolvedScope{Kind: domain.ScopeOnly, StreamIDs: s.resolveEntries(ctx, entries)}
		case ModeBlacklist:
			if len(entries) == 0 {
				return domain.ResolvedScope{Kind: domain.ScopeAll}
			}
			return domain.ResolvedScope{Kind: domain.ScopeAllExcept, StreamIDs: s.resolveEntries(ctx, entries)}
		default:
			if depth >= 1 {
				s.log.Error().Str("mode", mode).Msg("режим области чатов так и не разрешился, обрабатываются все чаты")
				return domain.ResolvedScope{Kind: domain.ScopeAll}
			}
			s.log.Warn().Str("mode", mode).Msg("неизвестный режим области чатов, пробуем whitelist")
			mode = ModeWhitelist
		}
	}
}

// resolveEntries переводит элементы конфигурации в идентификаторы потоков.
// Ненайденные чаты логируются и пропускаются.
func (s *Selector) resolveEntries(ctx context.Context, entries []Entry) []string {
	state := s.loadMapping()
	hash := configHash(entries)
	fresh := state.ConfigHash == hash
	if !fresh {
		state = mappingState{ConfigHash: hash, Mapping: make(map[string]string, len(entries))}
	}

	var out []string
	changed := !fresh
	for _, entry := range entries {
		key := entry.cacheKey()
		if streamID, ok := state.Mapping[key]; ok && fresh {
			if s.alive(ctx, streamID) {
				out = append(out, streamID)
				continue
			}
			s.log.Warn().Str("stream_id", streamID).Str("entry", key).Msg("закэшированный поток не отвечает, разрешаем заново")
		}

		streamID, err := s.lookup(ctx, entry)
		if err != nil {
			s.log.Warn().Err(err).Str("entry", key).Msg("чат из конфигурации не найден")
			continue
		}
		state.Mapping[key] = streamID
		changed = true
		out = append(out, streamID)
	}

	if changed {
		s.storeMapping(state)
	}
	return out
}

func (e Entry) cacheKey() string {
	if e.Group {
		return "group_" + e.ID
	}
	return "private_" + e.ID
}

func (s *Selector) lookup(ctx context.Context, entry Entry) (string, error) {
	if entry.Group {
		return s.streams.StreamIDByGroup(ctx, entry.ID)
	}
	return s.streams.StreamIDByUser(ctx, entry.ID)
}

// alive проверяет, что поток всё ещё существует и по нему идут сообщения.
func (s *Selector) alive(ctx context.Context, streamID string) bool {
	ok, err := s.messages.StreamHasMessages(ctx, streamID)
	if err != nil {
		s.log.Warn().Err(err).Str("stream_id", streamID).Msg("проба живости потока не удалась")
		return false
	}
	return ok
}

func (s *Selector) loadMapping() mappingState {
	state := mappingState{Mapping: make(map[string]string)}
	raw, err := s.cache.Get(mappingCacheKey)
	if err != nil || len(raw) == 0 {
		return state
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.Warn().Err(err).Msg("кэш соответствия чатов повреждён, игнорируем")
		return mappingState{Mapping: make(map[string]string)}
	}
	if state.Mapping == nil {
		state.Mapping = make(map[string]string)
	}
	return state
}

func (s *Selector) storeMapping(state mappingState) {
	raw, err := json.Marshal(state)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось сериализовать кэш соответствия чатов")
		return
	}
	if err := s.cache.Set(mappingCacheKey, raw, mappingCacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("не удалось сохранить кэш соответствия чатов")
	}
}

// configHash считает отпечаток конфигурации чатов. Порядок элементов в
// конфигурации на отпечаток не влияет.
func configHash(entries []Entry) string {
	var groups, privates []string
	for _, entry := range entries {
		if entry.Group {
			groups = append(groups, entry.ID)
		} else {
			privates = append(privates, entry.ID)
		}
	}
	sort.Strings(groups)
	sort.Strings(privates)
	payload := fmt.Sprintf("groups:%s;privates:%s", strings.Join(groups, ","), strings.Join(privates, ","))
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}
