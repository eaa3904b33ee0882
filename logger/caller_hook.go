package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const logrusPackage = "github.com/sirupsen/logrus."

// selfPackage is the import path of this package followed by a dot, e.g.
// "klinevault/logger.".
var selfPackage = func() string {
	pc, _, _, _ := runtime.Caller(0)
	name := runtime.FuncForPC(pc).Name()
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	return name[:slash+1+dot+1]
}()

// callerHook rewrites entry.Caller to the first frame outside logrus and
// the Log/Entry wrappers, so the file field names the component that logged.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	if frame, ok := callSite(); ok {
		entry.Caller = &frame
	}
	return nil
}

func callSite() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !internalFrame(frame.Function) {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// internalFrame reports whether fn belongs to logrus or to this package.
// External test packages (logger_test) are not internal.
func internalFrame(fn string) bool {
	return strings.HasPrefix(fn, logrusPackage) || strings.HasPrefix(fn, selfPackage)
}
