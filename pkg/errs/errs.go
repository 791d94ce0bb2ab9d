// Package errs defines the error classes used across the fetcher.
// A ConfigError is never retried and halts a bulk run; a TransientError
// is retried with backoff and is fatal only for the item at hand; a
// ResourceError is a filesystem failure that is not worth retrying.
package errs

import (
	"errors"
	"fmt"
)

type ConfigError struct {
	msg string
	err error
}

func (e *ConfigError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

type TransientError struct {
	msg string
	err error
}

func (e *TransientError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *TransientError) Unwrap() error {
	return e.err
}

type ResourceError struct {
	msg string
	err error
}

func (e *ResourceError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *ResourceError) Unwrap() error {
	return e.err
}

func Configf(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

func WrapConfig(err error, format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...), err: err}
}

func Transientf(format string, args ...interface{}) error {
	return &TransientError{msg: fmt.Sprintf(format, args...)}
}

func WrapTransient(err error, format string, args ...interface{}) error {
	return &TransientError{msg: fmt.Sprintf(format, args...), err: err}
}

func WrapResource(err error, format string, args ...interface{}) error {
	return &ResourceError{msg: fmt.Sprintf(format, args...), err: err}
}

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsResource(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}
