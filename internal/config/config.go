// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Платформа ---
	PlatformToken string `envconfig:"PLATFORM_TOKEN" required:"true"`
	// Канал для журнала репутации (0 — не публиковать)
	LogChannelID int64 `envconfig:"LOG_CHANNEL_ID" default:"0"`
	// Групповой чат, в котором бот работает (0 — любой)
	ChatID int64 `envconfig:"CHAT_ID" default:"0"`

	// --- Admin ---
	AdminIDsRaw       string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs          []int64 `envconfig:"-"` // заполним вручную
	AdminPasswordHash string  `envconfig:"ADMIN_PASSWORD_HASH" default:""`

	// --- Database ---
	// false — всё хранится в памяти процесса (для локальной отладки)
	DBEnabled bool `envconfig:"DB_ENABLED" default:"true"`
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"reputation_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Число воркеров. Апдейты одного участника всегда попадают в один воркер (порядок сохраняется).
	BotWorkers int `envconfig:"BOT_WORKERS" default:"16"`
	// Длина очереди каждого воркера
	BotQueueSize int `envconfig:"BOT_QUEUE_SIZE" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Metrics ---
	// Адрес HTTP-эндпоинта /metrics (пусто — выключено)
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// --- Reputation ---
	RepMinLevel        int           `envconfig:"REP_MIN_LEVEL" default:"2"`
	RepDailyLimit      int           `envconfig:"REP_DAILY_LIMIT" default:"7"`
	RepCooldown        time.Duration `envconfig:"REP_COOLDOWN" default:"72h"`
	RepReportWindow    time.Duration `envconfig:"REP_REPORT_WINDOW" default:"20m"`
	RepReportThreshold int           `envconfig:"REP_REPORT_THRESHOLD" default:"5"`
	RepImmunity        time.Duration `envconfig:"REP_IMMUNITY" default:"5h"`

	// --- Experience ---
	XPPerMessage     int           `envconfig:"XP_PER_MESSAGE" default:"2"`
	XPNewcomerBonus  int           `envconfig:"XP_NEWCOMER_BONUS" default:"10"`
	XPNewcomerWindow time.Duration `envconfig:"XP_NEWCOMER_WINDOW" default:"1m"`

	// --- Voice ---
	VoiceShortSession time.Duration `envconfig:"VOICE_SHORT_SESSION" default:"1m"`
	VoiceLongSession  time.Duration `envconfig:"VOICE_LONG_SESSION" default:"2h"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.PlatformToken) == "" {
		return fmt.Errorf("PLATFORM_TOKEN не задан")
	}
	if c.BotWorkers <= 0 {
		return fmt.Errorf("BOT_WORKERS должен быть > 0")
	}
	if c.BotQueueSize <= 0 {
		return fmt.Errorf("BOT_QUEUE_SIZE должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBEnabled {
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD не задан (или выключите БД: DB_ENABLED=false)")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	}
	if c.RepDailyLimit <= 0 || c.RepReportThreshold <= 0 {
		return fmt.Errorf("REP_DAILY_LIMIT и REP_REPORT_THRESHOLD должны быть > 0")
	}
	if c.RepCooldown < 0 || c.RepReportWindow <= 0 || c.RepImmunity <= 0 {
		return fmt.Errorf("некорректные REP_COOLDOWN/REP_REPORT_WINDOW/REP_IMMUNITY")
	}
	if c.VoiceShortSession >= c.VoiceLongSession {
		return fmt.Errorf("VOICE_SHORT_SESSION должен быть меньше VOICE_LONG_SESSION")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
