package main

import (
	"fmt"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	log "github.com/sirupsen/logrus"
)

// logrusLogger routes the bridge's logging to logrus.
type logrusLogger struct {
	entry *log.Entry
}

func newLogrusLogger(logger *log.Logger) logrusLogger {
	return logrusLogger{entry: log.NewEntry(logger).WithField("component", "ldbridge")}
}

func (l logrusLogger) Printf(format string, a ...any) {
	l.entry.Printf(format, a...)
}

func (l logrusLogger) Infof(format string, a ...any) {
	l.entry.Infof(format, a...)
}

func (l logrusLogger) Debugf(format string, a ...any) {
	l.entry.Debugf(format, a...)
}

func (l logrusLogger) Warnf(format string, a ...any) {
	l.entry.Warnf(format, a...)
}

func (l logrusLogger) Errorf(format string, a ...any) error {
	l.entry.Errorf(format, a...)
	return fmt.Errorf(format, a...)
}

// logSink logs tracked events. The file provider has no analytics backend to deliver them to.
type logSink struct{}

func (logSink) Track(c ldcontext.Context, eventName string, data ldvalue.Value, metricValue *float64) {
	fields := log.Fields{"event": eventName, "context": c.FullyQualifiedKey()}
	if !data.IsNull() {
		fields["data"] = data.JSONString()
	}
	if metricValue != nil {
		fields["metricValue"] = *metricValue
	}
	log.WithFields(fields).Info("Tracked event")
}

func (logSink) Flush() {}
