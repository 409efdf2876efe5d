package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// User is a named caller identified by its key.
type User struct {
	Name        string     `json:"name"`
	Key         Key        `json:"key"`
	Permissions Permission `json:"permissions"`
}

// Allows reports whether the user may invoke method on resource.
func (u User) Allows(resource, method string) bool {
	return u.Permissions.Allows(resource, method)
}

// Key is a shared secret. Unsafe keys are exempt from the strength rule.
//
// In JSON a key is either a plain string or {"__unsafe": "<key>"}.
type Key struct {
	Value  string
	Unsafe bool
}

// UnsafeKey returns a key that skips the strength check.
func UnsafeKey(value string) Key {
	return Key{Value: value, Unsafe: true}
}

type unsafeKey struct {
	Unsafe *string `json:"__unsafe"`
}

func (k Key) MarshalJSON() ([]byte, error) {
	if k.Unsafe {
		return json.Marshal(unsafeKey{Unsafe: &k.Value})
	}
	return json.Marshal(k.Value)
}

func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var u unsafeKey
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if u.Unsafe == nil {
			return fmt.Errorf("key object must have an __unsafe field")
		}
		*k = Key{Value: *u.Unsafe, Unsafe: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("key must be a string or {\"__unsafe\": ...}: %w", err)
	}
	*k = Key{Value: s}
	return nil
}

var (
	lowerChar   = regexp.MustCompile(`[a-z]`)
	upperChar   = regexp.MustCompile(`[A-Z]`)
	digitChar   = regexp.MustCompile(`[0-9]`)
	specialChar = regexp.MustCompile(`[\x20-\x2F\x3A-\x40\x5B-\x60\x7B-\x7E]`)
)

// MinKeyLength is the shortest key accepted by the strength rule.
const MinKeyLength = 8

// IsStrongKey reports whether key has at least MinKeyLength characters and
// mixes lower case, upper case, digits and ASCII punctuation.
func IsStrongKey(key string) bool {
	return len([]rune(key)) >= MinKeyLength &&
		lowerChar.MatchString(key) &&
		upperChar.MatchString(key) &&
		digitChar.MatchString(key) &&
		specialChar.MatchString(key)
}

// Strong reports whether the key passes the strength rule; unsafe keys always do.
func (k Key) Strong() bool {
	return k.Unsafe || IsStrongKey(k.Value)
}
