package domain

// ScopeKind определяет, какие чаты участвуют в сборе сообщений.
type ScopeKind int

const (
	// ScopeDisabled — обработка выключена, фоновые запуски пропускаются.
	ScopeDisabled ScopeKind = iota
	// ScopeAll — обрабатываются все чаты без ограничений.
	ScopeAll
	// ScopeOnly — обрабатываются только перечисленные чаты.
	ScopeOnly
	// ScopeAllExcept — обрабатываются все чаты, кроме перечисленных.
	ScopeAllExcept
)

// ResolvedScope — результат разрешения конфигурации чатов в конкретные
// идентификаторы потоков. StreamIDs заполняется только для ScopeOnly и ScopeAllExcept.
type ResolvedScope struct {
	Kind      ScopeKind
	StreamIDs []string
}

// String возвращает человекочитаемое имя стратегии для логов.
func (k ScopeKind) String() string {
	switch k {
	case ScopeDisabled:
		return "disabled"
	case ScopeAll:
		return "all"
	case ScopeOnly:
		return "only"
	case ScopeAllExcept:
		return "all_except"
	default:
		return "unknown"
	}
}
