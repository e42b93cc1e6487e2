package eventsvc

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/gurudigital/pelangi/core"
)

// loggerAdapter writes watermill logs to a core.Logger. Debug and trace logs are dropped unless debug is set.
type loggerAdapter struct {
	logger core.Logger
	fields watermill.LogFields
	debug  bool
}

var _ watermill.LoggerAdapter = (*loggerAdapter)(nil)

func newLoggerAdapter(logger core.Logger, debug bool) *loggerAdapter {
	return &loggerAdapter{logger: logger, debug: debug}
}

func (l *loggerAdapter) args(fields watermill.LogFields) map[string]interface{} {
	merged := l.fields.Add(fields)
	args := make(map[string]interface{}, len(merged))
	for k, v := range merged {
		args[k] = v
	}
	return args
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error("events: "+msg, err, l.args(fields))
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Info("events: "+msg, l.args(fields))
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	if l.debug {
		l.logger.Debug("events: "+msg, l.args(fields))
	}
}

func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.Debug(msg, fields)
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{logger: l.logger, fields: l.fields.Add(fields), debug: l.debug}
}
