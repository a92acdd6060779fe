package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const maxCallerDepth = 24

// callerHook rewrites entry.Caller to the first frame outside logrus and the
// Entry/Log wrappers in this package, so log lines point at component code.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, maxCallerDepth)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isLoggingFrame(frame.Function) {
			f := frame
			entry.Caller = &f
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isLoggingFrame(fn string) bool {
	if strings.Contains(fn, "sirupsen/logrus") {
		return true
	}
	// Tests in this package must keep their own frames.
	return strings.HasPrefix(fn, "liqfeed/logger.") && !strings.Contains(fn, ".Test")
}
