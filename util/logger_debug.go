//go:build ldbridge_debug_logging

package util

import (
	"log"
)

func init() {
	log.Printf("ldbridge debug logging enabled")
}

func Infof(format string, a ...any) {
	current().Infof(format, a...)
}

func Debugf(format string, a ...any) {
	current().Debugf(format, a...)
}

func (defaultLogger) Debugf(format string, a ...any) {
	log.Printf("DEBUG: "+withNewline(format), a...)
}

func (defaultLogger) Infof(format string, a ...any) {
	log.Printf("INFO: "+withNewline(format), a...)
}
