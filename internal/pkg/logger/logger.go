package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a level name ("debug", "INFO", "warning", ...) to a Level.
// Unrecognised names fall back to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes one JSON object per line. Values are passed through the
// redaction filters before being written.
type Logger struct {
	level  Level
	mu     sync.Mutex
	out    io.Writer
	redact bool
}

// New creates a Logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: w, redact: true}
}

var defaultLogger = New(os.Stderr, INFO)

// Default returns the package-level logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = l
	defaultLogger.mu.Unlock()
}

// SetOutput redirects the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// SetRedact enables or disables secret and email redaction for the default logger.
func SetRedact(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redact = r
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// Info emits an INFO-level entry on l.
func (l *Logger) Info(msg string, fields ...interface{}) { l.log(INFO, msg, fields...) }

// Warn emits a WARN-level entry on l.
func (l *Logger) Warn(msg string, fields ...interface{}) { l.log(WARN, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		var val interface{} = fields[i+1]
		switch v := val.(type) {
		case error:
			val = v.Error()
		case fmt.Stringer:
			val = v.String()
		}
		if s, ok := val.(string); ok && l.redact {
			val = redactValue(key, s)
		}
		entry[key] = val
	}
	if len(fields)%2 == 1 {
		entry["_extra"] = fmt.Sprintf("%v", fields[len(fields)-1])
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":%q,"msg":%q,"marshal_error":%q}`, levelNames[level], msg, err.Error()))
	}
	fmt.Fprintln(l.out, string(data))
}

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
	queryRegex  = regexp.MustCompile(`(?i)((?:token|api_key|apikey|access_token)=)[^&\s"]+`)
)

func redactValue(key, val string) string {
	lk := strings.ToLower(key)
	if strings.Contains(lk, "token") || strings.Contains(lk, "secret") || lk == "authorization" {
		return RedactSecret(val)
	}
	val = bearerRegex.ReplaceAllString(val, "Bearer ***")
	val = queryRegex.ReplaceAllString(val, "${1}***")
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
