package icc

import (
	"fmt"
	stdlog "log"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

var (
	logEnabled bool
	yellow     = color.New(color.FgYellow)
	red        = color.New(color.FgRed)
	green      = color.New(color.FgGreen)
)

// InitLog turns the package's debug trace on or off. Disabled by default, the
// way a compiler should be when embedded in something else.
func InitLog(enabled bool) {
	logEnabled = enabled
	if !enabled {
		return
	}
	stdlog.SetFlags(stdlog.Lshortfile)
	stdlog.SetOutput(colorable.NewColorableStderr())
}

func log(v ...interface{}) {
	if logEnabled {
		stdlog.Output(2, fmt.Sprintln(v...))
	}
}

func logf(format string, v ...interface{}) {
	if logEnabled {
		stdlog.Output(2, fmt.Sprintf(format+"\n", v...))
	}
}

// hi highlights text in log message with yellow color
//
//	log("compiling global", hi(name), "as package", hi(id))
func hi(v ...interface{}) string {
	if !logEnabled {
		return ""
	}
	return yellow.Sprint(v...)
}

// ftl is for fatal message. This function should be used only for fatal error information
func ftl(v ...interface{}) string {
	if !logEnabled {
		return ""
	}
	return red.Sprint(v...)
}

// dbg is for debugging. This function should not be used usually, but used for temporary highlighting
// for debugging. While logging is enabled it also writes its arguments to the log.
func dbg(v ...interface{}) string {
	if !logEnabled {
		return ""
	}
	stdlog.Output(2, green.Sprintln(v...))
	return green.Sprint(v...)
}
