// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log defines the structured logging surface used across the
// engine, the planner, the connectors, and the request lifecycle manager.
package log

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface consumed by the rest of the module.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	DebugContext(ctx context.Context, msg string)
	InfoContext(ctx context.Context, msg string)
	WarnContext(ctx context.Context, msg string)
	ErrorContext(ctx context.Context, msg string)
}

// SeverityToLevel converts the CLI's string log level flag into a zapcore.Level.
func SeverityToLevel(severity string) (zapcore.Level, error) {
	switch severity {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", severity)
	}
}

type zapLogger struct {
	l *zap.Logger
}

var _ Logger = &zapLogger{}

func newZapLogger(enc zapcore.Encoder, out, errOut io.Writer, level zapcore.Level) (*zapLogger, error) {
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(out), zapcore.LevelEnabler(zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= level && l < zapcore.ErrorLevel
		}))),
		zapcore.NewCore(enc, zapcore.AddSync(errOut), zapcore.LevelEnabler(zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= level && l >= zapcore.ErrorLevel
		}))),
	)
	return &zapLogger{l: zap.New(core)}, nil
}

// NewStdLogger returns a Logger that writes human-readable console lines,
// the "standard" logging format.
func NewStdLogger(out, errOut io.Writer, levelStr string) (Logger, error) {
	level, err := SeverityToLevel(levelStr)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return newZapLogger(zapcore.NewConsoleEncoder(cfg), out, errOut, level)
}

// NewStructuredLogger returns a Logger that writes one JSON object per line,
// the "json" logging format.
func NewStructuredLogger(out, errOut io.Writer, levelStr string) (Logger, error) {
	level, err := SeverityToLevel(levelStr)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.MessageKey = "message"
	cfg.TimeKey = "timestamp"
	cfg.LevelKey = "severity"
	return newZapLogger(zapcore.NewJSONEncoder(cfg), out, errOut, level)
}

func (z *zapLogger) Debug(msg string) { z.l.Debug(msg) }
func (z *zapLogger) Info(msg string)  { z.l.Info(msg) }
func (z *zapLogger) Warn(msg string)  { z.l.Warn(msg) }
func (z *zapLogger) Error(msg string) { z.l.Error(msg) }

func (z *zapLogger) DebugContext(_ context.Context, msg string) { z.l.Debug(msg) }
func (z *zapLogger) InfoContext(_ context.Context, msg string)  { z.l.Info(msg) }
func (z *zapLogger) WarnContext(_ context.Context, msg string)  { z.l.Warn(msg) }
func (z *zapLogger) ErrorContext(_ context.Context, msg string) { z.l.Error(msg) }

// NewNopLogger returns a Logger that discards everything, for use in tests.
func NewNopLogger() Logger {
	return &zapLogger{l: zap.NewNop()}
}
