package logger

import (
	"github.com/rs/zerolog"
)

// RetryableHTTPAdapter routes go-retryablehttp's leveled logging through zerolog.
type RetryableHTTPAdapter struct{}

func (RetryableHTTPAdapter) Error(msg string, keysAndValues ...interface{}) {
	withFields(Error(), keysAndValues).Msg(msg)
}

func (RetryableHTTPAdapter) Info(msg string, keysAndValues ...interface{}) {
	withFields(Debug(), keysAndValues).Msg(msg)
}

func (RetryableHTTPAdapter) Debug(msg string, keysAndValues ...interface{}) {
	withFields(Debug(), keysAndValues).Msg(msg)
}

func (RetryableHTTPAdapter) Warn(msg string, keysAndValues ...interface{}) {
	withFields(Warn(), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
