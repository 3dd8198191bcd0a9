package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config controls where structured log lines go. An empty FilePath keeps
// output on stdout only.
type Config struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var globalLogger *zap.Logger

// Init installs a stdout JSON logger at info level.
func Init() {
	globalLogger = New(os.Stdout, Config{})
}

// InitWithConfig installs a logger that writes to stdout and, when
// cfg.FilePath is set, to a size-rotated file.
func InitWithConfig(cfg Config) {
	writers := []io.Writer{os.Stdout}
	if cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	globalLogger = New(io.MultiWriter(writers...), cfg)
}

// SetOutput redirects the global logger to w at info level.
func SetOutput(w io.Writer) {
	globalLogger = New(w, Config{})
}

// New builds a JSON logger writing one entry per line to output.
func New(output io.Writer, cfg Config) *zap.Logger {
	if output == nil {
		output = os.Stdout
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "action",
		CallerKey:      "caller",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(output),
		level,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func log(level LogLevel, action string, userID *string, details map[string]interface{}, err error) {
	if globalLogger == nil {
		return
	}

	fields := make([]zap.Field, 0, 3)
	if userID != nil {
		fields = append(fields, zap.String("user_id", *userID))
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	if err != nil {
		fields = append(fields, zap.String("error", err.Error()))
	}

	switch level {
	case LevelError:
		globalLogger.Error(action, fields...)
	case LevelWarn:
		globalLogger.Warn(action, fields...)
	default:
		globalLogger.Info(action, fields...)
	}
}

func Info(action string, details map[string]interface{}) {
	log(LevelInfo, action, nil, details, nil)
}

func InfoWithUser(userID string, action string, details map[string]interface{}) {
	log(LevelInfo, action, &userID, details, nil)
}

func Warn(action string, details map[string]interface{}) {
	log(LevelWarn, action, nil, details, nil)
}

func WarnWithUser(userID string, action string, details map[string]interface{}) {
	log(LevelWarn, action, &userID, details, nil)
}

func Error(action string, err error, details map[string]interface{}) {
	log(LevelError, action, nil, details, err)
}

func ErrorWithUser(userID string, action string, err error, details map[string]interface{}) {
	log(LevelError, action, &userID, details, err)
}

func GetUserIDFromContext(c *fiber.Ctx) *string {
	if userID := c.Locals("userID"); userID != nil {
		if id, ok := userID.(string); ok {
			return &id
		}
	}
	return nil
}

var sensitiveFields = []string{
	"password", "newPassword", "token", "secret", "code", "totpCode", "backupCode",
}

func redactSensitiveFields(jsonMap map[string]interface{}) {
	for _, field := range sensitiveFields {
		if _, exists := jsonMap[field]; exists {
			jsonMap[field] = "[REDACTED]"
		}
	}
}

func GetRequestBodySummary(c *fiber.Ctx) string {
	body := c.Body()
	if len(body) == 0 {
		return "empty"
	}

	if len(body) > 1024 {
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(body, &jsonMap); err == nil {
		redactSensitiveFields(jsonMap)
		if jsonBytes, err := json.Marshal(jsonMap); err == nil {
			if len(jsonBytes) > 200 {
				return string(jsonBytes[:200]) + "..."
			}
			return string(jsonBytes)
		}
	}

	return fmt.Sprintf("binary (%d bytes)", len(body))
}

// MaskIdentifier keeps the first two characters of a username or email so
// log lines stay correlatable without recording the full identifier.
func MaskIdentifier(identifier string) string {
	if len(identifier) <= 2 {
		return "**"
	}
	at := strings.IndexByte(identifier, '@')
	if at > 0 {
		return identifier[:min(2, at)] + "***" + identifier[at:]
	}
	return identifier[:2] + "***"
}

func GenerateRequestID() string {
	return uuid.New().String()
}
