// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupParams selects where and how the service logs. LogFileName enables a
// rotating file; LogToStdout mirrors it to stdout.
type SetupParams struct {
	LogFileName   string
	LogToStdout   bool
	LogLevel      string
	LogFormatJSON bool
	ServiceName   string
}

// Setup applies level, formatter and output to the standard logrus logger and
// returns an entry tagged with the service name.
func Setup(params SetupParams) *logrus.Entry {
	if params.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetLevel(GetLevel(params.LogLevel))
	logrus.SetOutput(output(params))

	return logrus.WithField("service", params.ServiceName)
}

func output(params SetupParams) io.Writer {
	if params.LogFileName == "" {
		return os.Stdout
	}

	if !strings.HasSuffix(params.LogFileName, ".log") {
		params.LogFileName += ".log"
	}
	rotating := &lumberjack.Logger{
		Filename:   params.LogFileName,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		LocalTime:  false,
		Compress:   true,
	}
	if params.LogToStdout {
		return io.MultiWriter(os.Stdout, rotating)
	}
	return rotating
}

// GetLevel maps a level name onto a logrus level, defaulting to info.
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
