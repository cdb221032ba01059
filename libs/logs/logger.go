package logs

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/utils"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Log *zap.Logger
	mu  sync.Mutex
)

type LoggerConfig struct {
	Filename   string `json:"filename" toml:"filename"`
	MaxSize    int    `json:"maxsize" toml:"maxsize"`
	MaxAge     int    `json:"maxage" toml:"maxage"`
	MaxBackups int    `json:"maxbackups" toml:"maxbackups"`
	LocalTime  bool   `json:"localtime" toml:"localtime"`
	Compress   bool   `json:"compress" toml:"compress"`
	Level      string `json:"level" toml:"level"`
}

// DefaultLoggerConfig logs at info level to stdout and logs/chatrelay.log.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Filename:   "logs/chatrelay.log",
		MaxSize:    60,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
		Level:      "info",
	}
}

// Init builds the global logger from a JSON encoded LoggerConfig.
// An empty filename disables the rotating file output.
func Init(logConfigJson []byte) error {
	logConfig := DefaultLoggerConfig()
	if len(logConfigJson) > 0 {
		parsed, err := utils.Bytes2Struct[LoggerConfig](logConfigJson)
		if err != nil {
			return errors.Wrap(err, "parse log configuration")
		}
		logConfig = parsed
	}
	logger, err := New(logConfig)
	if err != nil {
		return err
	}

	mu.Lock()
	Log = logger
	mu.Unlock()
	return nil
}

// New builds a logger without touching the global one.
func New(logConfig LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if logConfig.Level != "" {
		parsed, err := zapcore.ParseLevel(logConfig.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", logConfig.Level)
		}
		level = parsed
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}
	if logConfig.Filename != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logConfig.Filename,
			MaxSize:    logConfig.MaxSize, // megabytes
			MaxBackups: logConfig.MaxBackups,
			MaxAge:     logConfig.MaxAge, // days
			LocalTime:  logConfig.LocalTime,
			Compress:   logConfig.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoder, fileWriter, level))
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// GetLogger returns a child of the global logger tagged with the module name,
// initialising the global logger with defaults on first use.
func GetLogger(m string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if Log == nil {
		logger, err := New(DefaultLoggerConfig())
		if err != nil {
			panic("failed to build default logger: " + err.Error())
		}
		Log = logger
	}
	return Log.With(zap.String("module", m))
}

func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if Log != nil {
		_ = Log.Sync()
	}
}

func Info(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Info(msg, fields...)
	}
}

func Warn(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Warn(msg, fields...)
	}
}

func Error(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Error(msg, fields...)
	}
}

func Debug(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Debug(msg, fields...)
	}
}
