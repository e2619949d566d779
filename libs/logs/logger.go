package logs

import (
	"os"
	"sync"

	"github.com/stardustagi/gptshell/utils"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Log    *zap.Logger
	initMu sync.Mutex
)

type LoggerConfig struct {
	Filename     string `json:"filename" toml:"filename"`
	MaxSize      int    `json:"maxsize" toml:"maxsize"`
	MaxAge       int    `json:"maxage" toml:"maxage"`
	MaxBackups   int    `json:"maxbackups" toml:"maxbackups"`
	LocalTime    bool   `json:"localtime" toml:"localtime"`
	Compress     bool   `json:"compress" toml:"compress"`
	Level        int    `json:"level" toml:"level"`
	ConsoleLevel *int   `json:"console_level,omitempty" toml:"console_level"`
}

// Init 根据 JSON 配置初始化全局日志；控制台输出写到 stderr，避免污染命令输出
func Init(logConfigJson []byte) error {
	logConfig, err := utils.Bytes2Struct[LoggerConfig](logConfigJson)
	if err != nil {
		return err
	}
	InitWithConfig(logConfig)
	return nil
}

func InitWithConfig(logConfig LoggerConfig) {
	// 日志级别
	level := clampLevel(zapcore.Level(logConfig.Level), zapcore.InfoLevel)
	consoleLevel := zapcore.WarnLevel
	if logConfig.ConsoleLevel != nil {
		consoleLevel = clampLevel(zapcore.Level(*logConfig.ConsoleLevel), zapcore.WarnLevel)
	}

	// 编码器配置
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

	var zapCore []zapcore.Core
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	// 控制台输出
	zapCore = append(zapCore, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	))
	// 文件输出配置
	if logConfig.Filename != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logConfig.Filename,
			MaxSize:    logConfig.MaxSize,    // megabytes
			MaxBackups: logConfig.MaxBackups, // 日志文件保留的最大个数
			MaxAge:     logConfig.MaxAge,     // days
			LocalTime:  logConfig.LocalTime,
			Compress:   logConfig.Compress, // 是否压缩
		})
		zapCore = append(zapCore, zapcore.NewCore(
			encoder,
			fileWriter,
			level,
		))
	}

	// 合并输出目标
	core := zapcore.NewTee(zapCore...)

	initMu.Lock()
	defer initMu.Unlock()
	Log = zap.New(core, zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

func clampLevel(level, fallback zapcore.Level) zapcore.Level {
	if level < zapcore.DebugLevel || level > zapcore.FatalLevel {
		return fallback
	}
	return level
}

// SetLogger 替换全局日志（测试中注入 zaptest logger）
func SetLogger(l *zap.Logger) {
	initMu.Lock()
	defer initMu.Unlock()
	Log = l
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func Infof(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Infof(format, args...)
	}
}

func Info(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Info(msg, fields...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Warnf(format, args...)
	}
}

func Warn(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Warn(msg, fields...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Errorf(format, args...)
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

func Debugf(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Debugf(format, args...)
	}
}

// GetLogger 返回带模块名的子日志；未初始化时只输出 warn 以上到 stderr
func GetLogger(m string) *zap.Logger {
	initMu.Lock()
	uninitialized := Log == nil
	initMu.Unlock()
	if uninitialized {
		InitWithConfig(LoggerConfig{})
	}
	initMu.Lock()
	defer initMu.Unlock()
	return Log.With(zap.String("module", m))
}
