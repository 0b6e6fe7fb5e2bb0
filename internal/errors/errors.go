// Package errors provides standardized error handling for quarry.
// It defines kinded error types for the catalog engine (source enumeration,
// cache files, activation preconditions, configuration and the learning
// database) plus helpers for wrapping and inspecting them.
package errors

import (
	"errors"
	"fmt"
)

// Standard errors package errors that we re-export for convenience
var (
	// Unwrap unwraps an error to access the underlying error
	Unwrap = errors.Unwrap
	// Is reports whether any error in err's chain matches target
	Is = errors.Is
	// As finds the first error in err's chain that matches target
	As = errors.As
)

// ErrorKind represents the kind of error
type ErrorKind int

// Error kinds
const (
	Unknown ErrorKind = iota
	// Source error kinds
	SourceEnumerationFailed
	SourcePanicked
	// Cache error kinds
	CacheMiss
	CacheCorrupt
	CacheVersionMismatch
	CacheWriteFailed
	// Activation error kinds
	NoSelection
	NoAction
	NoObject
	ActionFailed
	// Config error kinds
	InvalidConfig
	ConfigNotFound
	// Database error kinds
	DatabaseConnectionFailed
	DatabaseQueryFailed
	DatabaseOperationFailed
	// Search error kinds
	SearchSuperseded
)

// Common sentinel errors
var (
	ErrSuperseded    = &ApplicationError{msg: "search superseded by a newer query", kind: SearchSuperseded}
	ErrInvalidConfig = NewConfigError("invalid configuration", "", InvalidConfig, nil)
)

// ApplicationError is the base error type for all application errors
type ApplicationError struct {
	msg  string
	err  error
	kind ErrorKind
}

// Error returns the error message
func (e *ApplicationError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap returns the wrapped error
func (e *ApplicationError) Unwrap() error {
	return e.err
}

// Kind returns the kind of error
func (e *ApplicationError) Kind() ErrorKind {
	return e.kind
}

// SourceError is raised when a catalog source fails to enumerate its items.
type SourceError struct {
	ApplicationError
	source string
}

// NewSourceError creates a new source error
func NewSourceError(msg string, source string, kind ErrorKind, err error) *SourceError {
	return &SourceError{
		ApplicationError: ApplicationError{msg: msg, err: err, kind: kind},
		source:           source,
	}
}

// Error returns the source error message
func (e *SourceError) Error() string {
	if e.source == "" {
		return e.ApplicationError.Error()
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.msg, e.source, e.err)
	}
	return fmt.Sprintf("%s: %s", e.msg, e.source)
}

// Source returns the name of the failing source
func (e *SourceError) Source() string {
	return e.source
}

// CacheError represents a problem with an on-disk source cache file
type CacheError struct {
	ApplicationError
	path string
}

// NewCacheError creates a new cache error
func NewCacheError(msg string, path string, kind ErrorKind, err error) *CacheError {
	return &CacheError{
		ApplicationError: ApplicationError{msg: msg, err: err, kind: kind},
		path:             path,
	}
}

// Error returns the cache error message
func (e *CacheError) Error() string {
	if e.path == "" {
		return e.ApplicationError.Error()
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.msg, e.path, e.err)
	}
	return fmt.Sprintf("%s: %s", e.msg, e.path)
}

// Path returns the cache file path
func (e *CacheError) Path() string {
	return e.path
}

// ActivationError is returned when an action cannot be (or failed to be) executed.
type ActivationError struct {
	ApplicationError
	action string
}

// NewActivationError creates a new activation error
func NewActivationError(msg string, action string, kind ErrorKind, err error) *ActivationError {
	return &ActivationError{
		ApplicationError: ApplicationError{msg: msg, err: err, kind: kind},
		action:           action,
	}
}

// Error returns the activation error message
func (e *ActivationError) Error() string {
	if e.action == "" {
		return e.ApplicationError.Error()
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.msg, e.action, e.err)
	}
	return fmt.Sprintf("%s: %s", e.msg, e.action)
}

// Action returns the action name associated with the error
func (e *ActivationError) Action() string {
	return e.action
}

// ConfigError represents errors related to configuration
type ConfigError struct {
	ApplicationError
	param string
}

// NewConfigError creates a new configuration error
func NewConfigError(msg string, param string, kind ErrorKind, err error) *ConfigError {
	return &ConfigError{
		ApplicationError: ApplicationError{msg: msg, err: err, kind: kind},
		param:            param,
	}
}

// Error returns the config error message
func (e *ConfigError) Error() string {
	if e.param != "" {
		if e.err != nil {
			return fmt.Sprintf("%s: %s: %v", e.msg, e.param, e.err)
		}
		return fmt.Sprintf("%s: %s", e.msg, e.param)
	}
	return e.ApplicationError.Error()
}

// Param returns the configuration parameter associated with the error
func (e *ConfigError) Param() string {
	return e.param
}

// DatabaseError represents errors related to database operations
type DatabaseError struct {
	ApplicationError
	operation string
	context   map[string]interface{}
}

// NewDatabaseError creates a new database error
func NewDatabaseError(msg string, err error) *DatabaseError {
	return &DatabaseError{
		ApplicationError: ApplicationError{msg: msg, err: err, kind: DatabaseOperationFailed},
		context:          make(map[string]interface{}),
	}
}

// WithOperation adds operation information to the database error
func (e *DatabaseError) WithOperation(operation string) *DatabaseError {
	e.operation = operation
	return e
}

// WithContext adds context information to the database error
func (e *DatabaseError) WithContext(key string, value interface{}) *DatabaseError {
	e.context[key] = value
	return e
}

// Error returns the database error message
func (e *DatabaseError) Error() string {
	if e.operation != "" {
		if e.err != nil {
			return fmt.Sprintf("%s: operation=%s: %v", e.msg, e.operation, e.err)
		}
		return fmt.Sprintf("%s: operation=%s", e.msg, e.operation)
	}
	return e.ApplicationError.Error()
}

// Operation returns the database operation associated with the error
func (e *DatabaseError) Operation() string {
	return e.operation
}

// Context returns the context information associated with the error
func (e *DatabaseError) Context() map[string]interface{} {
	return e.context
}

// New creates a new error with a message
func New(msg string) error {
	return &ApplicationError{msg: msg, kind: Unknown}
}

// Newf creates a new error with a formatted message
func Newf(format string, args ...interface{}) error {
	return &ApplicationError{msg: fmt.Sprintf(format, args...), kind: Unknown}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &ApplicationError{msg: msg, err: err, kind: Unknown}
}

// Wrapf wraps an existing error with additional formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &ApplicationError{msg: fmt.Sprintf(format, args...), err: err, kind: Unknown}
}

// KindOf returns the kind of the first kinded error in err's chain.
func KindOf(err error) ErrorKind {
	type kinded interface{ Kind() ErrorKind }
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() != Unknown {
			return k.Kind()
		}
		err = errors.Unwrap(err)
	}
	return Unknown
}

// IsCacheMiss reports whether err means a cache entry could not be trusted.
func IsCacheMiss(err error) bool {
	var cacheErr *CacheError
	if !errors.As(err, &cacheErr) {
		return false
	}
	switch cacheErr.Kind() {
	case CacheMiss, CacheCorrupt, CacheVersionMismatch:
		return true
	}
	return false
}

// IsNoSelection reports whether err is an activation precondition failure.
func IsNoSelection(err error) bool {
	var actErr *ActivationError
	if !errors.As(err, &actErr) {
		return false
	}
	switch actErr.Kind() {
	case NoSelection, NoAction, NoObject:
		return true
	}
	return false
}

// IsSourceFailure reports whether err came from a failing source
func IsSourceFailure(err error) bool {
	var srcErr *SourceError
	return errors.As(err, &srcErr)
}

// IsSuperseded reports whether a search was abandoned for a newer query
func IsSuperseded(err error) bool {
	return KindOf(err) == SearchSuperseded
}

// IsInvalidConfig checks if the error is an invalid configuration error
func IsInvalidConfig(err error) bool {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr.Kind() == InvalidConfig
	}
	return false
}

// IsDatabaseError checks if the error is a database error
func IsDatabaseError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr)
}
