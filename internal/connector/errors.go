package connector

import "fmt"

// ConfigError reports an invalid pipeline or connection configuration. It
// is raised synchronously at build/validate time, before any run exists.
type ConfigError struct {
	msg string
}

func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string { return e.msg }

// IsConfigError reports whether err is a configuration error, as opposed to
// a connector (network/auth) failure.
func IsConfigError(err error) bool {
	switch err.(type) {
	case *ConfigError, *UnsupportedConnectorError:
		return true
	}
	return false
}

// UnsupportedConnectorError is returned when a family cannot serve the
// requested operation (source vs destination).
type UnsupportedConnectorError struct {
	Family    Family
	Operation string
}

func (e *UnsupportedConnectorError) Error() string {
	return fmt.Sprintf("unsupported %s connector family: %s", e.Operation, e.Family)
}
