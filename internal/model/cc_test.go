package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCCInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    CCKind
		emails  []string
		depts   DepartmentCC
		wantErr bool
	}{
		{name: "empty", raw: "", kind: CCNone},
		{name: "null", raw: "null", kind: CCNone},
		{name: "empty list", raw: "[]", kind: CCNone},
		{name: "email list", raw: `["a@example.com","b@example.com"]`, kind: CCEmailList, emails: []string{"a@example.com", "b@example.com"}},
		{name: "department map", raw: `{"Finance":["Alice Smith"]}`, kind: CCDepartmentMap, depts: DepartmentCC{"Finance": {"Alice Smith"}}},
		{name: "string encoded list", raw: `"[\"a@example.com\"]"`, kind: CCEmailList, emails: []string{"a@example.com"}},
		{name: "string encoded map", raw: `"{\"HR\":[\"Bob\"]}"`, kind: CCDepartmentMap, depts: DepartmentCC{"HR": {"Bob"}}},
		{name: "double encoded", raw: `"\"[]\""`, wantErr: true},
		{name: "number", raw: "42", wantErr: true},
		{name: "list of numbers", raw: "[1,2]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := ParseCCInput([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCCInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, cc.Kind)
			assert.Equal(t, tt.emails, cc.Emails)
			assert.Equal(t, tt.depts, cc.Departments)
		})
	}
}

func TestCCInput_JSONField(t *testing.T) {
	var req struct {
		CC CCInput `json:"ccEmployees"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"ccEmployees":{"Ops":["Dana"]}}`), &req))
	assert.Equal(t, CCDepartmentMap, req.CC.Kind)
	assert.False(t, req.CC.IsEmpty())

	out, err := json.Marshal(req.CC)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Ops":["Dana"]}`, string(out))
}

func TestDepartmentCC_ValueAndScan(t *testing.T) {
	var nilMap DepartmentCC
	v, err := nilMap.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	var scanned DepartmentCC
	require.NoError(t, scanned.Scan([]byte(`{"HR":["Bob"],"Finance":["Alice"]}`)))
	assert.Equal(t, []string{"Finance", "HR"}, scanned.Departments())

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(42))
}

func TestNormalizeEmails(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, NormalizeEmails([]string{" a@example.com ", "", "  ", "b@example.com"}))
}
