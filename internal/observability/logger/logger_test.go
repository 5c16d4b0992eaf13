package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/config"
	obscontext "github.com/smallbiznis/pearlsonic/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-7")
	ctx = obscontext.WithUserID(ctx, "99")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-7" {
		t.Fatalf("expected request_id, got %v", fields["request_id"])
	}
	if fields["user_id"] != "99" {
		t.Fatalf("expected user_id, got %v", fields["user_id"])
	}
}

func TestLogRequestLevels(t *testing.T) {
	cases := []struct {
		name      string
		route     string
		status    int
		errorType string
		want      zapcore.Level
	}{
		{name: "ok", route: "/api/music/generate", status: 200, want: zapcore.InfoLevel},
		{name: "server_error", route: "/api/music/generate", status: 500, want: zapcore.ErrorLevel},
		{name: "status_poll", route: "/api/music/status/:id", status: 200, want: zapcore.DebugLevel},
		{name: "rate_limited", route: "/api/auth/login", status: 429, errorType: "rate_limited", want: zapcore.WarnLevel},
		{name: "health", route: "/health", status: 200, want: zapcore.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			logRequest(zap.New(core), tc.route, tc.status, tc.errorType, nil)
			entries := logs.All()
			if len(entries) != 1 || entries[0].Level != tc.want {
				t.Fatalf("expected one %v entry, got %+v", tc.want, entries)
			}
		})
	}
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{`UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?`, "UPDATE", "users"},
		{`INSERT INTO "credit_transactions" ("id","user_id") VALUES (?,?) ON CONFLICT DO NOTHING`, "INSERT", "credit_transactions"},
		{`SELECT * FROM generation_jobs WHERE id = ? LIMIT 1`, "SELECT", "generation_jobs"},
		{`PRAGMA foreign_keys`, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		if op != tc.op || table != tc.table {
			t.Fatalf("%q: expected %s/%s, got %s/%s", tc.sql, tc.op, tc.table, op, table)
		}
	}
}

func TestSQLLoggerSkipsNotFoundAndFlagsSlowQueries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewSQLLogger(zap.New(core), SQLConfig{Level: ParseSQLLevel("warn"), SlowThreshold: 50 * time.Millisecond})
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT * FROM users WHERE id = ?", 0 }

	log.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	log.Trace(ctx, time.Now(), query, nil)
	if logs.Len() != 0 {
		t.Fatalf("expected nothing logged, got %d entries", logs.Len())
	}

	log.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	log.Trace(ctx, time.Now(), query, errors.New("disk I/O error"))

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected slow and failed entries, got %d", len(entries))
	}
	if entries[0].Message != "slow query" || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected first entry %+v", entries[0].Entry)
	}
	if entries[1].Message != "query failed" || entries[1].ContextMap()["table"] != "users" {
		t.Fatalf("unexpected second entry %+v", entries[1].ContextMap())
	}
}

func TestSQLConfigFromApp(t *testing.T) {
	cfg := SQLConfigFrom(config.ObservabilityConfig{SQLLogLevel: "OFF", SQLLogNotFound: true})
	if cfg.Level != gormlogger.Silent || !cfg.LogNotFound {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if ParseSQLLevel("") != gormlogger.Warn {
		t.Fatalf("expected warn default")
	}
}
