package buildCFG

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"trekreg/internal/auth"
	"trekreg/internal/export"
	"trekreg/internal/mailer"
)

type ServerConfig struct {
	Port string
	Mode string
}

type RabbitConfig struct {
	Url           string
	Exchange      string
	Queue         string
	ReminderAfter time.Duration
}

// Enabled reports whether payment reminders should be wired at all.
func (c RabbitConfig) Enabled() bool {
	return c.Url != ""
}

type AppConfig struct {
	EventName string
	PublicURL string
	Timezone  *time.Location
	StateDir  string
}

type SchedulerConfig struct {
	SessionPurgeInterval time.Duration
	StatsAt              string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port: cfg.GetString("server.port"),
		Mode: cfg.GetString("server.mode"),
	}
	if sc.Port == "" {
		sc.Port = "8080"
		log.Warn().Msg("server.port is not set, using 8080")
	}
	if sc.Mode == "" {
		sc.Mode = "release"
	}
	return sc
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("postgres.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, errors.New("postgres.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("postgres.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("postgres.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("postgres.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("postgres.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}

	log.Info().
		Int("slaves", len(slaveDSNs)).
		Int("max_open_conns", opts.MaxOpenConns).
		Msg("database config loaded")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:           cfg.GetString("rabbitmq.url"),
		Exchange:      cfg.GetString("rabbitmq.exchange"),
		Queue:         cfg.GetString("rabbitmq.queue"),
		ReminderAfter: cfg.GetDuration("rabbitmq.reminder_after"),
	}
	if !rc.Enabled() {
		log.Warn().Msg("rabbitmq.url is not set, payment reminders are disabled")
		return rc, nil
	}
	if rc.Exchange == "" || rc.Queue == "" {
		return rc, errors.New("rabbitmq.exchange and rabbitmq.queue are required when rabbitmq.url is set")
	}
	if rc.ReminderAfter <= 0 {
		rc.ReminderAfter = 24 * time.Hour
	}
	return rc, nil
}

func BuildSMTPConfig(cfg *config.Config, log *zerolog.Logger) mailer.SMTPConfig {
	sc := mailer.SMTPConfig{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetInt("smtp.port"),
		Username: cfg.GetString("smtp.username"),
		Password: cfg.GetString("smtp.password"),
		From:     cfg.GetString("smtp.from"),
	}
	if sc.Port == 0 {
		sc.Port = 587
	}
	if !sc.Configured() {
		log.Warn().Msg("smtp is not configured, outgoing email will fail")
	}
	return sc
}

func BuildAdminConfig(cfg *config.Config, log *zerolog.Logger) auth.Config {
	ac := auth.Config{
		APIKey:       cfg.GetString("admin.api_key"),
		PasswordHash: cfg.GetString("admin.password_hash"),
		Secret:       cfg.GetString("admin.jwt_secret"),
		TTL:          cfg.GetDuration("admin.session_ttl"),
	}
	if ac.PasswordHash == "" || ac.Secret == "" {
		log.Warn().Msg("admin.password_hash or admin.jwt_secret is not set, admin console is locked")
	}
	if ac.APIKey == "" {
		log.Warn().Msg("admin.api_key is not set, key-protected endpoints reject every request")
	}
	return ac
}

func BuildAppConfig(cfg *config.Config, log *zerolog.Logger) (AppConfig, error) {
	ac := AppConfig{
		EventName: cfg.GetString("app.event_name"),
		PublicURL: cfg.GetString("app.public_url"),
		StateDir:  cfg.GetString("app.state_dir"),
		Timezone:  time.UTC,
	}
	if ac.EventName == "" {
		ac.EventName = "Annual Trek"
	}
	if tz := cfg.GetString("app.timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ac, fmt.Errorf("app.timezone: %w", err)
		}
		ac.Timezone = loc
	}
	if ac.PublicURL == "" {
		log.Warn().Msg("app.public_url is not set, ticket codes carry the bare ticket id")
	}
	return ac, nil
}

func BuildExportConfig(cfg *config.Config, log *zerolog.Logger) export.Config {
	ec := export.Config{
		Bucket:          cfg.GetString("export.bucket"),
		Prefix:          cfg.GetString("export.prefix"),
		Region:          cfg.GetString("export.region"),
		Endpoint:        cfg.GetString("export.endpoint"),
		AccessKeyID:     cfg.GetString("export.access_key_id"),
		SecretAccessKey: cfg.GetString("export.secret_access_key"),
	}
	if !ec.Enabled() {
		log.Info().Msg("export.bucket is not set, csv exports are not archived")
	}
	return ec
}

func BuildSchedulerConfig(cfg *config.Config) SchedulerConfig {
	sc := SchedulerConfig{
		SessionPurgeInterval: cfg.GetDuration("scheduler.session_purge_interval"),
		StatsAt:              cfg.GetString("scheduler.stats_at"),
	}
	if sc.SessionPurgeInterval <= 0 {
		sc.SessionPurgeInterval = time.Hour
	}
	if sc.StatsAt == "" {
		sc.StatsAt = "08:00"
	}
	return sc
}
