package dap

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted configuration document of a single dap. Any key
// may be omitted in the file; missing keys keep their zero value, so a
// freshly scaffolded dap can ship a minimal document declaring only its
// required permissions.
type Settings struct {
	Application ApplicationSettings `yaml:"application"`
	Permissions PermissionsSettings `yaml:"permissions"`
}

// ApplicationSettings controls user-facing behaviour of a dap.
type ApplicationSettings struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

// PermissionsSettings is the declared/allowed capability contract between a
// dap and the host. Required lists what the dap's module cannot function
// without; Allowed lists what the host grants.
type PermissionsSettings struct {
	Required []Permission `yaml:"required"`
	Allowed  []Permission `yaml:"allowed"`
}

// DefaultSettings returns the document used when a dap ships no settings
// file: disabled, untitled, no permissions.
func DefaultSettings() Settings {
	return Settings{}
}

// RequiredSubsetOfAllowed reports whether every required permission is also
// allowed. The contract is advisory: callers log violations, nothing
// enforces them.
func (s Settings) RequiredSubsetOfAllowed() bool {
	return NewPermissionSet(s.Permissions.Allowed...).ContainsAll(s.Permissions.Required)
}

// LoadSettings reads a settings document from path. A missing file is
// reported as os.ErrNotExist so callers can fall back to defaults; any other
// failure, including a malformed document, is a SettingsError.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), fmt.Errorf("dap settings %s: %w", path, os.ErrNotExist)
		}
		return DefaultSettings(), SettingsError{Path: path, Err: err}
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), SettingsError{Path: path, Err: err}
	}
	return settings, nil
}

// SaveSettings writes the whole document back to path.
func SaveSettings(path string, settings Settings) error {
	encoded, err := yaml.Marshal(settings)
	if err != nil {
		return SettingsError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return SettingsError{Path: path, Err: err}
	}
	return nil
}
