package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// Уровни логирования.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var (
	stdOnce sync.Once
	std     *log.Logger
)

// Logger is the process-wide line writer. Tests swap its output.
func Logger() *log.Logger {
	stdOnce.Do(func() { std = log.New(os.Stdout, "", 0) })
	return std
}

// Emit writes entry as a single JSON line. An entry that fails to encode is
// replaced by a line describing the failure so nothing is silently lost.
func Emit(entry map[string]any) {
	line, err := json.Marshal(entry)
	if err != nil {
		line, _ = json.Marshal(map[string]any{
			"ts":    timestamp(),
			"level": LevelError,
			"msg":   "log_encode_failed",
			"error": err.Error(),
			"event": entry["msg"],
		})
	}
	Logger().Println(string(line))
}

// Log emits msg at level. ts, level and msg always win over same-named
// fields; error values are flattened to strings.
func Log(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if e, ok := v.(error); ok && e != nil {
			v = e.Error()
		}
		entry[k] = v
	}
	entry["ts"] = timestamp()
	entry["level"] = level
	entry["msg"] = msg
	Emit(entry)
}

func Info(msg string, fields map[string]any)  { Log(LevelInfo, msg, fields) }
func Warn(msg string, fields map[string]any)  { Log(LevelWarn, msg, fields) }
func Error(msg string, fields map[string]any) { Log(LevelError, msg, fields) }

func timestamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }
