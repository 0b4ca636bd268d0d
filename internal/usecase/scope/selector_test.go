package scope

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/magisk317/diary-plugin/internal/domain"
)

type stubStreams struct {
	groups   map[string]string
	privates map[string]string
	lookups  int
}

func (s *stubStreams) UpsertStream(context.Context, domain.Stream) error { return nil }

func (s *stubStreams) StreamIDByGroup(_ context.Context, groupID string) (string, error) {
	s.lookups++
	if id, ok := s.groups[groupID]; ok {
		return id, nil
	}
	return "", domain.ErrStreamNotFound
}

func (s *stubStreams) StreamIDByUser(_ context.Context, userID string) (string, error) {
	s.lookups++
	if id, ok := s.privates[userID]; ok {
		return id, nil
	}
	return "", domain.ErrStreamNotFound
}

type stubMessages struct {
	alive map[string]bool
}

func (s *stubMessages) SaveMessage(context.Context, domain.Message) (int64, error) { return 0, nil }

func (s *stubMessages) MessagesByTime(context.Context, int64, int64, domain.FetchFilter) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubMessages) MessagesByTimeInStream(context.Context, string, int64, int64, domain.FetchFilter) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubMessages) StreamHasMessages(_ context.Context, streamID string) (bool, error) {
	return s.alive[streamID], nil
}

type memoryCache struct {
	values map[string][]byte
}

func (c *memoryCache) Set(key string, value []byte, _ time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	c.values[key] = value
	return nil
}

func (c *memoryCache) Get(key string) ([]byte, error) { return c.values[key], nil }

func TestParseEntries(t *testing.T) {
	raw := []string{"group:123", "private:456", "group:123", "qq:999", "group:", "private:456"}
	entries := ParseEntries(raw, zerolog.Nop())
	if len(entries) != 2 {
		t.Fatalf("ожидали 2 элемента, получили %d: %v", len(entries), entries)
	}
	if entries[0] != (Entry{ID: "123", Group: true}) {
		t.Fatalf("неверный первый элемент: %+v", entries[0])
	}
	if entries[1] != (Entry{ID: "456"}) {
		t.Fatalf("неверный второй элемент: %+v", entries[1])
	}
}

func TestResolveWhitelist(t *testing.T) {
	streams := &stubStreams{groups: map[string]string{"123": "s-group"}, privates: map[string]string{"456": "s-user"}}
	messages := &stubMessages{alive: map[string]bool{"s-group": true, "s-user": true}}
	selector := NewSelector(streams, messages, &memoryCache{}, zerolog.Nop())

	entries := []Entry{{ID: "123", Group: true}, {ID: "456"}}
	resolved := selector.Resolve(context.Background(), ModeWhitelist, entries)
	if resolved.Kind != domain.ScopeOnly {
		t.Fatalf("ожидали область whitelist, получили %v", resolved.Kind)
	}
	if len(resolved.StreamIDs) != 2 || resolved.StreamIDs[0] != "s-group" || resolved.StreamIDs[1] != "s-user" {
		t.Fatalf("неверные потоки: %v", resolved.StreamIDs)
	}
}

func TestResolveWhitelistEmptyDisables(t *testing.T) {
	selector := NewSelector(&stubStreams{}, &stubMessages{}, &memoryCache{}, zerolog.Nop())
	resolved := selector.Resolve(context.Background(), ModeWhitelist, nil)
	if resolved.Kind != domain.ScopeDisabled {
		t.Fatalf("пустой whitelist должен выключать область, получили %v", resolved.Kind)
	}
}

func TestResolveBlacklistEmptyAllowsAll(t *testing.T) {
	selector := NewSelector(&stubStreams{}, &stubMessages{}, &memoryCache{}, zerolog.Nop())
	resolved := selector.Resolve(context.Background(), ModeBlacklist, nil)
	if resolved.Kind != domain.ScopeAll {
		t.Fatalf("пустой blacklist должен разрешать все чаты, получили %v", resolved.Kind)
	}
}

func TestResolveUnknownModeFallsBack(t *testing.T) {
	selector := NewSelector(&stubStreams{}, &stubMessages{}, &memoryCache{}, zerolog.Nop())

	// Неизвестный режим трактуется как whitelist: пустой список выключает область.
	resolved := selector.Resolve(context.Background(), "graylist", nil)
	if resolved.Kind != domain.ScopeDisabled {
		t.Fatalf("ожидали трактовку как whitelist, получили %v", resolved.Kind)
	}
}

func TestResolveSkipsMissingChats(t *testing.T) {
	streams := &stubStreams{groups: map[string]string{"123": "s-group"}}
	messages := &stubMessages{alive: map[string]bool{"s-group": true}}
	selector := NewSelector(streams, messages, &memoryCache{}, zerolog.Nop())

	entries := []Entry{{ID: "123", Group: true}, {ID: "777", Group: true}}
	resolved := selector.Resolve(context.Background(), ModeWhitelist, entries)
	if len(resolved.StreamIDs) != 1 || resolved.StreamIDs[0] != "s-group" {
		t.Fatalf("ненайденный чат должен пропускаться: %v", resolved.StreamIDs)
	}
}

func TestResolveReusesCachedMapping(t *testing.T) {
	streams := &stubStreams{groups: map[string]string{"123": "s-group"}}
	messages := &stubMessages{alive: map[string]bool{"s-group": true}}
	cache := &memoryCache{}
	selector := NewSelector(streams, messages, cache, zerolog.Nop())
	entries := []Entry{{ID: "123", Group: true}}

	selector.Resolve(context.Background(), ModeWhitelist, entries)
	if streams.lookups != 1 {
		t.Fatalf("первое разрешение должно сходить в хранилище, обращений: %d", streams.lookups)
	}

	selector.Resolve(context.Background(), ModeWhitelist, entries)
	if streams.lookups != 1 {
		t.Fatalf("повторное разрешение должно браться из кэша, обращений: %d", streams.lookups)
	}
}

func TestResolveRefreshesDeadStream(t *testing.T) {
	streams := &stubStreams{groups: map[string]string{"123": "s-new"}}
	messages := &stubMessages{alive: map[string]bool{"s-new": true}}
	cache := &memoryCache{}
	entries := []Entry{{ID: "123", Group: true}}

	// В кэше лежит поток, по которому больше нет сообщений.
	stale, _ := json.Marshal(mappingState{
		ConfigHash: configHash(entries),
		Mapping:    map[string]string{"group_123": "s-dead"},
	})
	cache.Set(mappingCacheKey, stale, time.Hour)

	selector := NewSelector(streams, messages, cache, zerolog.Nop())
	resolved := selector.Resolve(context.Background(), ModeWhitelist, entries)
	if len(resolved.StreamIDs) != 1 || resolved.StreamIDs[0] != "s-new" {
		t.Fatalf("мёртвый поток должен разрешаться заново: %v", resolved.StreamIDs)
	}
}

func TestResolveInvalidatesCacheOnConfigChange(t *testing.T) {
	streams := &stubStreams{groups: map[string]string{"123": "s1", "999": "s9"}}
	messages := &stubMessages{alive: map[string]bool{"s1": true, "s9": true}}
	cache := &memoryCache{}
	selector := NewSelector(streams, messages, cache, zerolog.Nop())

	selector.Resolve(context.Background(), ModeWhitelist, []Entry{{ID: "123", Group: true}})
	lookups := streams.lookups

	selector.Resolve(context.Background(), ModeWhitelist, []Entry{{ID: "123", Group: true}, {ID: "999", Group: true}})
	if streams.lookups != lookups+2 {
		t.Fatalf("смена конфигурации должна сбрасывать кэш, обращений: %d", streams.lookups)
	}
}

func TestConfigHashIgnoresOrder(t *testing.T) {
	a := configHash([]Entry{{ID: "1", Group: true}, {ID: "2"}, {ID: "3", Group: true}})
	b := configHash([]Entry{{ID: "3", Group: true}, {ID: "2"}, {ID: "1", Group: true}})
	if a != b {
		t.Fatalf("отпечаток не должен зависеть от порядка элементов")
	}

	c := configHash([]Entry{{ID: "1", Group: true}, {ID: "2", Group: true}, {ID: "3", Group: true}})
	if a == c {
		t.Fatalf("разные конфигурации не должны совпадать по отпечатку")
	}
}
