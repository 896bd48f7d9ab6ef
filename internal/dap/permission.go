package dap

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Permission is a capability token a dap declares as required or is granted
// as allowed. Tokens are compared by identity only.
type Permission string

const (
	PermissionFileRead  Permission = "file-read"
	PermissionFileWrite Permission = "file-write"
	PermissionHTTP      Permission = "http"
	PermissionWebSocket Permission = "websocket"
	PermissionTCP       Permission = "tcp"
	PermissionUI        Permission = "ui"
)

var knownPermissions = map[Permission]struct{}{
	PermissionFileRead:  {},
	PermissionFileWrite: {},
	PermissionHTTP:      {},
	PermissionWebSocket: {},
	PermissionTCP:       {},
	PermissionUI:        {},
}

// Permissions returns the fixed enumeration of capability tokens.
func Permissions() []Permission {
	return []Permission{
		PermissionFileRead,
		PermissionFileWrite,
		PermissionHTTP,
		PermissionWebSocket,
		PermissionTCP,
		PermissionUI,
	}
}

// Valid reports whether p is part of the fixed enumeration.
func (p Permission) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

func (p Permission) String() string {
	return string(p)
}

// UnmarshalYAML decodes and validates a permission token. Unknown tokens are
// rejected so that a typo in a settings file surfaces as a parse error
// instead of silently granting nothing.
func (p *Permission) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	perm := Permission(raw)
	if !perm.Valid() {
		return fmt.Errorf("unknown permission %q", raw)
	}
	*p = perm
	return nil
}

// PermissionSet is a membership view over a permission list.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given tokens, dropping duplicates.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, perm := range perms {
		set[perm] = struct{}{}
	}
	return set
}

// Contains reports set membership.
func (s PermissionSet) Contains(perm Permission) bool {
	_, ok := s[perm]
	return ok
}

// ContainsAll reports whether every token of other is present in s.
func (s PermissionSet) ContainsAll(other []Permission) bool {
	for _, perm := range other {
		if !s.Contains(perm) {
			return false
		}
	}
	return true
}
