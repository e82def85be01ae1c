package raven_transport

import (
	"fmt"
	"strings"
)

// Level is the severity of an event
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

// String returns the wire name of the level. Unknown levels are reported as error.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "error"
	}
}

// ParseLevel converts a wire name back to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelError, fmt.Errorf("unknown level %q", s)
	}
}

// FromUnixLogLevel maps syslog severities (0 emergency .. 7 debug) onto event levels
func FromUnixLogLevel(i int) Level {
	switch i {
	case 0:
		return LevelFatal
	case 1, 2, 3:
		return LevelError
	case 4:
		return LevelWarning
	case 5, 6:
		return LevelInfo
	default:
		return LevelDebug
	}
}
