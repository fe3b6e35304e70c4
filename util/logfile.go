package util

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files opened with OpenLogFile.
const (
	LogFileMaxSizeMB  = 10
	LogFileMaxBackups = 3
	LogFileMaxAgeDays = 7
)

// OpenLogFile returns a size-rotated writer for path.  The file is
// created lazily on first write.  Callers close it when done.
func OpenLogFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    LogFileMaxSizeMB,
		MaxBackups: LogFileMaxBackups,
		MaxAge:     LogFileMaxAgeDays,
	}
}
