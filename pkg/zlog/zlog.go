package zlog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Init 初始化日志：控制台 + 滚动文件双输出。logPath 为空时只输出到控制台。
func Init(logPath string) {
	once.Do(func() {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		cores := []zapcore.Core{
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel),
		}
		if logPath != "" {
			w := &lumberjack.Logger{
				Filename:   filepath.Join(logPath, "semhub.log"),
				MaxSize:    64, // MB
				MaxBackups: 7,
				MaxAge:     30, // days
				Compress:   true,
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapcore.InfoLevel))
		}
		logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	})
}

func base() *zap.Logger {
	if logger == nil {
		Init("")
	}
	return logger
}

func Debug(msg string, fields ...zap.Field) { base().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { base().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { base().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { base().Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { base().Fatal(msg, fields...) }

// Sync 刷新缓冲区（退出前调用）
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
