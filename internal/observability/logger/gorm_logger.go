package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig configures SQL logging.
type GormConfig struct {
	// Level defaults to Warn: failed and slow statements only.
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LogParams keeps bound values (addresses, proof references) in logged SQL.
	LogParams bool
}

// GormLogger routes GORM statements to zap with the caller's order and
// merchant correlation.
type GormLogger struct {
	cfg GormConfig
}

func NewGormLogger(cfg GormConfig) *GormLogger {
	if cfg.Level == 0 {
		cfg.Level = gormlogger.Warn
	}
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cfg := l.cfg
	cfg.Level = level
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	FromContext(ctx).Log(level, msg, fields...)
}

// Trace logs failed statements as errors and slow ones as warnings. Missing
// rows are not failures; repositories report them as nil results.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		level zapcore.Level
		msg   string
	)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.cfg.Level >= gormlogger.Error:
		level, msg = zapcore.ErrorLevel, "sql failed"
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		level, msg = zapcore.WarnLevel, "sql slow"
	case l.cfg.Level >= gormlogger.Info:
		level, msg = zapcore.DebugLevel, "sql"
	default:
		return
	}

	sql, rows := fc()
	stmt := describeStatement(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("statement", stmt.verb),
		zap.String("table", stmt.table),
		zap.Bool("row_lock", stmt.locking),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	FromContext(ctx).Log(level, msg, fields...)
}

func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if l.cfg.LogParams {
		return sql, params
	}
	return sql, nil
}

type statement struct {
	verb    string
	table   string
	locking bool
}

// describeStatement picks out the verb and target table so lock waits on
// orders, couriers and quota packages can be told apart.
func describeStatement(sql string) statement {
	tokens := strings.Fields(strings.ToUpper(sql))
	stmt := statement{verb: "UNKNOWN"}

	tableAfter := ""
	for i, token := range tokens {
		token = strings.Trim(token, "();")
		if stmt.verb == "UNKNOWN" {
			switch token {
			case "SELECT", "DELETE":
				stmt.verb, tableAfter = token, "FROM"
			case "INSERT":
				stmt.verb, tableAfter = token, "INTO"
			case "UPDATE":
				stmt.verb = token
				if i+1 < len(tokens) {
					stmt.table = tableName(tokens[i+1])
				}
			}
			continue
		}
		if tableAfter != "" && stmt.table == "" && token == tableAfter && i+1 < len(tokens) {
			stmt.table = tableName(tokens[i+1])
		}
		if token == "FOR" && i+1 < len(tokens) && (tokens[i+1] == "UPDATE" || tokens[i+1] == "SHARE") {
			stmt.locking = true
		}
	}
	return stmt
}

func tableName(token string) string {
	return strings.ToLower(strings.Trim(token, "\"`();"))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
