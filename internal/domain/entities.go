package domain

// Пороговые значения пайплайна генерации дневника.
const (
	// MinMessageCount — минимальное число сообщений за день, ниже которого
	// генерация не запускается.
	MinMessageCount = 3
	// TokenLimit50K — потолок токенов для ручных запусков.
	TokenLimit50K = 50000
	// TokenLimit126K — потолок токенов для фоновых запусков по расписанию.
	TokenLimit126K = 126000
	// MaxDiaryLength — верхняя граница допустимой длины дневника в символах.
	MaxDiaryLength = 8000
)

// Погода дневника, выводится из эмоциональной окраски сообщений за день.
const (
	WeatherSunny    = "晴"
	WeatherCloudy   = "多云"
	WeatherOvercast = "阴"
	WeatherRainy    = "雨"
	WeatherClearing = "多云转晴"
)

// Статусы записей дневника.
const (
	StatusGenerated     = "生成成功"
	StatusGenerateError = "报错:生成失败"
	StatusPublished     = "一切正常"
	StatusPublishError  = "报错:发说说失败"
)

// Message — одно сообщение чата из хранилища.
type Message struct {
	ID         int64
	StreamID   string
	SenderID   string
	SenderName string
	SentAt     int64
	Text       string
	IsImage    bool
	ImageRef   string
	IsCommand  bool
	FromBot    bool
}

// Stream описывает чат (группу или личную переписку), из которого собираются сообщения.
type Stream struct {
	ID      string
	GroupID string
	UserID  string
	Title   string
}

// DiaryRecord — одна попытка генерации дневника за дату. Для одной даты может
// существовать несколько записей, актуальной считается последняя по времени генерации.
type DiaryRecord struct {
	Date         string
	TimeKey      string
	Content      string
	WordCount    int
	GeneratedAt  int64
	Weather      string
	BotMessages  int
	UserMessages int
	Status       string
	ErrorMessage string
	Published    bool
	PublishedAt  int64
}

// DiaryStats — агрегатная сводка по всем записям, перезаписывается после каждого сохранения.
type DiaryStats struct {
	TotalDiaries int
	TotalWords   int
	LastDate     string
	UpdatedAt    int64
}

// TranscriptStats — счётчики участия, собранные при сборке хроники дня.
type TranscriptStats struct {
	Total        int
	BotMessages  int
	UserMessages int
}

// Persona описывает личность бота, подставляемую в промпт.
type Persona struct {
	Core     string
	Style    string
	Interest string
	Nickname string
}
