package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Risk      RiskConfig
	Reconcile ReconcileConfig
	Summary   SummaryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RiskConfig exposes the metric lookback window and every classifier
// threshold as overridable values. Schools calibrate these differently,
// so none of them are hard-coded in the rule engine.
type RiskConfig struct {
	LookbackDays int

	AttendanceRateMin      float64
	AttendanceRateHigh     float64
	AttendanceRateCritical float64

	ConsecutiveAbsenceMin      int
	ConsecutiveAbsenceHigh     int
	ConsecutiveAbsenceCritical int

	AcademicAverageMin  float64
	AcademicAverageHigh float64

	OverdueDaysMin      int
	OverdueDaysHigh     int
	OverdueDaysCritical int
}

// ReconcileConfig tunes the reconciliation worker pool and job queue.
type ReconcileConfig struct {
	Workers      int
	QueueWorkers int
	QueueBuffer  int
	QueueRetries int
	RetryDelay   time.Duration
}

// SummaryConfig governs cache behaviour for the risk summary read model.
type SummaryConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Risk = RiskConfig{
		LookbackDays:               v.GetInt("RISK_LOOKBACK_DAYS"),
		AttendanceRateMin:          v.GetFloat64("RISK_ATTENDANCE_RATE_MIN"),
		AttendanceRateHigh:         v.GetFloat64("RISK_ATTENDANCE_RATE_HIGH"),
		AttendanceRateCritical:     v.GetFloat64("RISK_ATTENDANCE_RATE_CRITICAL"),
		ConsecutiveAbsenceMin:      v.GetInt("RISK_CONSECUTIVE_ABSENCE_MIN"),
		ConsecutiveAbsenceHigh:     v.GetInt("RISK_CONSECUTIVE_ABSENCE_HIGH"),
		ConsecutiveAbsenceCritical: v.GetInt("RISK_CONSECUTIVE_ABSENCE_CRITICAL"),
		AcademicAverageMin:         v.GetFloat64("RISK_ACADEMIC_AVERAGE_MIN"),
		AcademicAverageHigh:        v.GetFloat64("RISK_ACADEMIC_AVERAGE_HIGH"),
		OverdueDaysMin:             v.GetInt("RISK_OVERDUE_DAYS_MIN"),
		OverdueDaysHigh:            v.GetInt("RISK_OVERDUE_DAYS_HIGH"),
		OverdueDaysCritical:        v.GetInt("RISK_OVERDUE_DAYS_CRITICAL"),
	}

	cfg.Reconcile = ReconcileConfig{
		Workers:      v.GetInt("RECONCILE_WORKERS"),
		QueueWorkers: v.GetInt("RECONCILE_QUEUE_WORKERS"),
		QueueBuffer:  v.GetInt("RECONCILE_QUEUE_BUFFER"),
		QueueRetries: v.GetInt("RECONCILE_QUEUE_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("RECONCILE_QUEUE_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Summary = SummaryConfig{
		CacheTTL: parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "student_risk")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RISK_LOOKBACK_DAYS", 30)
	v.SetDefault("RISK_ATTENDANCE_RATE_MIN", 0.75)
	v.SetDefault("RISK_ATTENDANCE_RATE_HIGH", 0.60)
	v.SetDefault("RISK_ATTENDANCE_RATE_CRITICAL", 0.50)
	v.SetDefault("RISK_CONSECUTIVE_ABSENCE_MIN", 3)
	v.SetDefault("RISK_CONSECUTIVE_ABSENCE_HIGH", 5)
	v.SetDefault("RISK_CONSECUTIVE_ABSENCE_CRITICAL", 7)
	v.SetDefault("RISK_ACADEMIC_AVERAGE_MIN", 50.0)
	v.SetDefault("RISK_ACADEMIC_AVERAGE_HIGH", 35.0)
	v.SetDefault("RISK_OVERDUE_DAYS_MIN", 30)
	v.SetDefault("RISK_OVERDUE_DAYS_HIGH", 60)
	v.SetDefault("RISK_OVERDUE_DAYS_CRITICAL", 90)

	v.SetDefault("RECONCILE_WORKERS", 4)
	v.SetDefault("RECONCILE_QUEUE_WORKERS", 1)
	v.SetDefault("RECONCILE_QUEUE_BUFFER", 8)
	v.SetDefault("RECONCILE_QUEUE_RETRIES", 1)
	v.SetDefault("RECONCILE_QUEUE_RETRY_DELAY", "5s")

	v.SetDefault("SUMMARY_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
