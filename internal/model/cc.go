package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidCCInput is returned for CC selections that are neither a list of
// addresses nor a department to employee-names map.
var ErrInvalidCCInput = errors.New("ccEmployees must be a list of email addresses or a map of department to employee names")

// CCKind tags which shape a CCInput carries.
type CCKind int

const (
	CCNone CCKind = iota
	CCEmailList
	CCDepartmentMap
)

// CCInput is the raw CC selection of a send request, validated once at the
// boundary.
type CCInput struct {
	Kind        CCKind
	Emails      []string
	Departments DepartmentCC
}

// EmailListCC builds a CCInput from literal addresses.
func EmailListCC(emails ...string) CCInput {
	if len(emails) == 0 {
		return CCInput{}
	}
	return CCInput{Kind: CCEmailList, Emails: emails}
}

// DepartmentMapCC builds a CCInput from a department selection.
func DepartmentMapCC(departments map[string][]string) CCInput {
	if len(departments) == 0 {
		return CCInput{}
	}
	return CCInput{Kind: CCDepartmentMap, Departments: departments}
}

func (c CCInput) IsEmpty() bool {
	switch c.Kind {
	case CCEmailList:
		return len(c.Emails) == 0
	case CCDepartmentMap:
		return len(c.Departments) == 0
	default:
		return true
	}
}

// ParseCCInput accepts a JSON array of strings, a JSON object of string
// arrays, null/empty, or a JSON string holding one of those encodings.
func ParseCCInput(raw []byte) (CCInput, error) {
	return parseCCInput(raw, true)
}

func parseCCInput(raw []byte, allowString bool) (CCInput, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return CCInput{}, nil
	}

	switch raw[0] {
	case '[':
		var emails []string
		if err := json.Unmarshal(raw, &emails); err != nil {
			return CCInput{}, fmt.Errorf("%w: %v", ErrInvalidCCInput, err)
		}
		return EmailListCC(emails...), nil
	case '{':
		var departments map[string][]string
		if err := json.Unmarshal(raw, &departments); err != nil {
			return CCInput{}, fmt.Errorf("%w: %v", ErrInvalidCCInput, err)
		}
		return DepartmentMapCC(departments), nil
	case '"':
		if !allowString {
			return CCInput{}, ErrInvalidCCInput
		}
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return CCInput{}, fmt.Errorf("%w: %v", ErrInvalidCCInput, err)
		}
		return parseCCInput([]byte(encoded), false)
	default:
		return CCInput{}, ErrInvalidCCInput
	}
}

func (c *CCInput) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCCInput(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c CCInput) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CCEmailList:
		return json.Marshal(c.Emails)
	case CCDepartmentMap:
		return json.Marshal(c.Departments)
	default:
		return []byte("null"), nil
	}
}

// DepartmentCC maps a department path to the employee names selected in it.
// It is stored as jsonb.
type DepartmentCC map[string][]string

// Departments returns the keys in a stable order.
func (d DepartmentCC) Departments() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d DepartmentCC) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *DepartmentCC) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = DepartmentCC{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for cc_employees: %T", src)
	}
	out := DepartmentCC{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode cc_employees: %w", err)
	}
	*d = out
	return nil
}

// NormalizeEmails trims entries and drops blanks.
func NormalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
