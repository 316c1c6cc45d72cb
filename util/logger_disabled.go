//go:build !ldbridge_debug_logging

package util

// Debug and info output sits on the per-call path of every method call, so it is only
// compiled in with the ldbridge_debug_logging build tag.

func Infof(format string, a ...any) {}

func Debugf(format string, a ...any) {}

func (defaultLogger) Debugf(format string, a ...any) {}

func (defaultLogger) Infof(format string, a ...any) {}
