package dap

import (
	"errors"
	"fmt"
)

// ErrDapDisabled indicates a request targeted a dap that is present but not
// enabled.
var ErrDapDisabled = errors.New("dap: dap is disabled")

// ErrMainDapImmutable indicates an update targeted the main dap, which is
// exempt from the public toggle surface.
var ErrMainDapImmutable = errors.New("dap: main dap cannot be updated")

// NotFoundError indicates a dap name is not present in the registry.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("dap %q not found", e.Name)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// SettingsError indicates a malformed or unwritable settings document.
// A missing settings file is not a SettingsError: absence means defaults.
type SettingsError struct {
	Path string
	Err  error
}

func (e SettingsError) Error() string {
	return fmt.Sprintf("dap settings %s: %v", e.Path, e.Err)
}

func (e SettingsError) Unwrap() error {
	return e.Err
}

// IsSettingsError returns true when err is (or wraps) a SettingsError.
func IsSettingsError(err error) bool {
	var target SettingsError
	return errors.As(err, &target)
}

// ModuleError indicates module bytes were unreadable or the engine rejected
// instantiation.
type ModuleError struct {
	Name string
	Err  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("dap %q module: %v", e.Name, e.Err)
}

func (e ModuleError) Unwrap() error {
	return e.Err
}

// IsModuleError returns true when err is (or wraps) a ModuleError.
func IsModuleError(err error) bool {
	var target ModuleError
	return errors.As(err, &target)
}

// RequestError indicates a malformed administrative request.
type RequestError struct {
	Reason string
}

func (e RequestError) Error() string {
	return e.Reason
}

// IsRequestError returns true when err is (or wraps) a RequestError.
func IsRequestError(err error) bool {
	var target RequestError
	return errors.As(err, &target)
}
