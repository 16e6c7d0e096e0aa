package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
// Output is one JSON object per line on stderr so the account report on
// stdout stays machine-readable.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stderr, "", 0)
	})
	return logger
}

// Log emits a structured JSON log line with the common fields filled in.
func Log(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Info logs at info level.
func Info(msg string, fields map[string]any) { Log("info", msg, fields) }

// Warn logs at warn level.
func Warn(msg string, fields map[string]any) { Log("warn", msg, fields) }

// Error logs at error level.
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }
