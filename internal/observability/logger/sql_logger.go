package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/config"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// SQLConfig controls which statements reach the application log.
type SQLConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	LogNotFound   bool
}

func SQLConfigFrom(obs config.ObservabilityConfig) SQLConfig {
	return SQLConfig{
		Level:         ParseSQLLevel(obs.SQLLogLevel),
		SlowThreshold: obs.SQLSlowThreshold,
		LogNotFound:   obs.SQLLogNotFound,
	}
}

func ParseSQLLevel(raw string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// SQLLogger routes gorm output through zap with the request's correlation
// fields. Bound parameters are never logged: they carry emails and password
// hashes.
type SQLLogger struct {
	base *zap.Logger
	cfg  SQLConfig
}

func NewSQLLogger(base *zap.Logger, cfg SQLConfig) *SQLLogger {
	if base == nil {
		base = zap.L()
	}
	return &SQLLogger{base: base.Named("sql"), cfg: cfg}
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *SQLLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Info {
		WithContext(ctx, l.base).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Warn {
		WithContext(ctx, l.base).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *SQLLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Error {
		WithContext(ctx, l.base).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	notFound := errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold
	failed := err != nil && (!notFound || l.cfg.LogNotFound)

	if !failed && !slow && l.cfg.Level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	op, table := describeSQL(sql)
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("table", table),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	log := WithContext(ctx, l.base)

	switch {
	case failed && l.cfg.Level >= gormlogger.Error:
		log.Error("query failed", append(fields, zap.String("sql", strings.TrimSpace(sql)), zap.Error(err))...)
	case slow && l.cfg.Level >= gormlogger.Warn:
		log.Warn("slow query", append(fields, zap.String("sql", strings.TrimSpace(sql)))...)
	case l.cfg.Level >= gormlogger.Info:
		log.Debug("query", fields...)
	}
}

// ParamsFilter keeps placeholders in the logged SQL.
func (l *SQLLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

// describeSQL returns the statement keyword and the first table it names.
func describeSQL(sql string) (string, string) {
	tokens := strings.Fields(strings.TrimSpace(sql))
	op, table := "UNKNOWN", ""
	for i, raw := range tokens {
		token := strings.ToUpper(strings.Trim(raw, "();"))
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if op == "UNKNOWN" {
				op = token
			}
			if token == "UPDATE" && i+1 < len(tokens) && table == "" {
				table = cleanIdent(tokens[i+1])
			}
		case "FROM", "INTO":
			if i+1 < len(tokens) && table == "" {
				table = cleanIdent(tokens[i+1])
			}
		}
	}
	return op, table
}

func cleanIdent(raw string) string {
	return strings.Trim(raw, "`\"();")
}

var _ gormlogger.Interface = (*SQLLogger)(nil)
