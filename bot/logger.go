package bot

import (
	"fmt"
	"log/slog"
	"strings"
)

// Logger adapts slog for telego. Request URLs contain the bot token, so it is
// masked before anything is written.
type Logger struct {
	prefix string
	masker *strings.Replacer
}

func NewLogger(prefix string, token string) Logger {
	l := Logger{prefix: prefix}
	if token != "" {
		l.masker = strings.NewReplacer(token, "BOT_TOKEN")
	}

	return l
}

func (l Logger) Debugf(format string, args ...any) {
	slog.Debug(l.format(format, args...))
}

func (l Logger) Errorf(format string, args ...any) {
	slog.Error(l.format(format, args...))
}

func (l Logger) format(format string, args ...any) string {
	msg := l.prefix + fmt.Sprintf(format, args...)
	if l.masker != nil {
		msg = l.masker.Replace(msg)
	}

	return msg
}
