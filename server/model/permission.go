package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// AllResources is the fallback entry of a per-resource permission.
const AllResources = "ALL"

var ErrNestedPermission = errors.New("per-resource permissions cannot be nested")

type PermissionKind int

const (
	PermissionNone PermissionKind = iota
	PermissionWildcard
	PermissionMethods
	PermissionPerResource
)

// Permission says which methods a user may call.
//
// Resolution for a resource:
//  1. a wildcard grants everything on every resource
//  2. a method list applies to every resource
//  3. a per-resource map uses the entry named like the resource, compared
//     case-insensitively with an exact-case entry preferred; among several
//     case-insensitive matches the lowest name in byte order wins
//  4. otherwise the map's ALL entry
//  5. otherwise nothing
type Permission struct {
	Kind      PermissionKind
	Methods   []string
	Resources map[string]Permission
}

// Wildcard grants every method on every resource.
func Wildcard() Permission {
	return Permission{Kind: PermissionWildcard}
}

// Methods grants the listed methods on every resource.
func Methods(methods ...string) Permission {
	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	return Permission{Kind: PermissionMethods, Methods: upper}
}

// PerResource grants per-resource permissions.
func PerResource(resources map[string]Permission) Permission {
	return Permission{Kind: PermissionPerResource, Resources: resources}
}

// Resolve returns the permission that applies to resource. The result is never
// a per-resource permission.
func (p Permission) Resolve(resource string) Permission {
	switch p.Kind {
	case PermissionWildcard, PermissionMethods:
		return p
	case PermissionPerResource:
		if entry, ok := p.Resources[resource]; ok {
			return entry
		}
		for _, name := range slices.Sorted(maps.Keys(p.Resources)) {
			if name != AllResources && strings.EqualFold(name, resource) {
				return p.Resources[name]
			}
		}
		if entry, ok := p.Resources[AllResources]; ok {
			return entry
		}
	}
	return Permission{}
}

// Allows reports whether method may be invoked on resource.
func (p Permission) Allows(resource, method string) bool {
	resolved := p.Resolve(resource)
	switch resolved.Kind {
	case PermissionWildcard:
		return true
	case PermissionMethods:
		method = strings.ToUpper(method)
		for _, m := range resolved.Methods {
			if m == "*" || m == method {
				return true
			}
		}
	}
	return false
}

func (p Permission) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PermissionWildcard:
		return json.Marshal("*")
	case PermissionMethods:
		return json.Marshal(p.Methods)
	case PermissionPerResource:
		return json.Marshal(p.Resources)
	default:
		return []byte("null"), nil
	}
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	parsed, err := parsePermission(data, true)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func parsePermission(data []byte, allowResources bool) (Permission, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Permission{}, nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Permission{}, err
		}
		if s == "*" {
			return Wildcard(), nil
		}
		if s == "" {
			return Permission{}, nil
		}
		return Methods(s), nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return Permission{}, fmt.Errorf("permission list must hold method names: %w", err)
		}
		return Methods(list...), nil
	case '{':
		if !allowResources {
			return Permission{}, ErrNestedPermission
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return Permission{}, err
		}
		resources := make(map[string]Permission, len(raw))
		for name, entry := range raw {
			parsed, err := parsePermission(entry, false)
			if err != nil {
				return Permission{}, fmt.Errorf("permission for %q: %w", name, err)
			}
			resources[name] = parsed
		}
		return PerResource(resources), nil
	}
	return Permission{}, fmt.Errorf("unsupported permission value %s", string(data))
}
