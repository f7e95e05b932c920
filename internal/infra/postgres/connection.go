// Package postgres provides the PostgreSQL connection and the sync run history.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Defaults applied by NewConnection when the Config leaves them unset.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultSlowThreshold  = 200 * time.Millisecond
)

// Config holds the history database settings.
type Config struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	ApplicationName string // shown in pg_stat_activity
	ConnectTimeout  time.Duration
	SlowThreshold   time.Duration // queries slower than this are logged
	MaxOpenConns    int
	MaxIdleConns    int
	MaxLifetime     time.Duration
}

// DSN returns the libpq keyword/value connection string. Values are quoted
// so passwords may contain spaces or quotes.
func (c *Config) DSN() string {
	pairs := [][2]string{
		{"host", c.Host},
		{"port", fmt.Sprint(c.Port)},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Name},
		{"sslmode", c.SSLMode},
	}
	if c.ApplicationName != "" {
		pairs = append(pairs, [2]string{"application_name", c.ApplicationName})
	}
	if c.ConnectTimeout > 0 {
		// libpq takes whole seconds, at least 2
		secs := max(int(c.ConnectTimeout.Round(time.Second)/time.Second), 2)
		pairs = append(pairs, [2]string{"connect_timeout", fmt.Sprint(secs)})
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		parts = append(parts, p[0]+"="+quoteValue(p[1]))
	}

	return strings.Join(parts, " ")
}

func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}

	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)

	return "'" + r.Replace(v) + "'"
}

// NewConnection opens the history database and checks it answers within the
// connect timeout. GORM's own logging goes through logger at warn level, so
// slow queries and errors share the service's log output.
func NewConnection(ctx context.Context, cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = DefaultSlowThreshold
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.New(
			zap.NewStdLog(logger.Named("gorm")),
			gormlogger.Config{
				SlowThreshold:             cfg.SlowThreshold,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := HealthCheck(ctx, db, cfg.ConnectTimeout); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("history database connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
		zap.String("application_name", cfg.ApplicationName),
	)

	return db, nil
}

// Close closes the database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// HealthCheck pings the database, giving up after timeout.
func HealthCheck(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
