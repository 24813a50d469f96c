package sysutil

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 未初始化时为空实现，避免测试里解引用空指针
var Log = zap.NewNop()
var LogSugar = Log.Sugar()

// InitLogger 初始化全局日志
// level: debug/info/warn/error；format: console/json
func InitLogger(level, format string) {
	lvl := zap.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder // 格式化时间输出
	var enc zapcore.Encoder
	if format == "json" {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewJSONEncoder(config.EncoderConfig)
	} else {
		// 控制台模式：彩色级别，带行号
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(config.EncoderConfig)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	Log = zap.New(core, zap.AddCaller())
	LogSugar = Log.Sugar()
}
