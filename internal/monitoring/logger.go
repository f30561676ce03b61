// Package monitoring carries the process-wide diagnostic logger shared by
// the decode and mapping layers.
package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to log.Printf; batch tools
// and tests replace it through SetLogger to redirect or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
