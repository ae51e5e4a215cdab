package serviceerror

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatch(t *testing.T) {
	chain := &Error{
		Code: "accessDenied",
		InnerError: &Error{
			Code: "activityLimitReached",
			InnerError: &Error{
				Code: "throttledRequest",
			},
		},
	}

	tests := []struct {
		name string
		code string
		want bool
	}{
		{"given top-level code, then matches", "accessDenied", true},
		{"given different case, then matches", "ACCESSDENIED", true},
		{"given inner code, then matches", "activityLimitReached", true},
		{"given innermost code in different case, then matches", "ThrottledRequest", true},
		{"given unknown code, then does not match", "itemNotFound", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chain.IsMatch(tt.code))
		})
	}
}

func TestError_IsMatch_EmptyCode(t *testing.T) {
	t.Run("given empty code, then panics", func(t *testing.T) {
		e := &Error{Code: "accessDenied"}
		assert.Panics(t, func() { e.IsMatch("") })
	})

	t.Run("given empty code on service error without model, then panics", func(t *testing.T) {
		svcErr := &ServiceError{}
		assert.Panics(t, func() { svcErr.IsMatch("") })
	})
}

func TestError_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr assert.ErrorAssertionFunc
		check   func(t *testing.T, e *Error)
	}{
		{
			name:    "given camelCase innerError, then decodes chain",
			input:   `{"code":"a","message":"m","innerError":{"code":"b","date":"2024-01-01"}}`,
			wantErr: assert.NoError,
			check: func(t *testing.T, e *Error) {
				assert.Equal(t, "a", e.Code)
				assert.Equal(t, "m", e.Message)
				require.NotNil(t, e.InnerError)
				assert.Equal(t, "b", e.InnerError.Code)
				assert.JSONEq(t, `"2024-01-01"`, string(e.InnerError.AdditionalData["date"]))
			},
		},
		{
			name:    "given lowercase innererror, then decodes chain",
			input:   `{"code":"a","innererror":{"code":"b"}}`,
			wantErr: assert.NoError,
			check: func(t *testing.T, e *Error) {
				require.NotNil(t, e.InnerError)
				assert.Equal(t, "b", e.InnerError.Code)
			},
		},
		{
			name:    "given details and target, then decodes them",
			input:   `{"code":"a","target":"id","details":[{"code":"d","message":"dm","target":"t"}]}`,
			wantErr: assert.NoError,
			check: func(t *testing.T, e *Error) {
				assert.Equal(t, "id", e.Target)
				require.Len(t, e.Details, 1)
				assert.Equal(t, ErrorDetail{Code: "d", Message: "dm", Target: "t"}, e.Details[0])
			},
		},
		{
			name:    "given null fields, then leaves zero values",
			input:   `{"code":"a","message":null,"innerError":null,"details":null}`,
			wantErr: assert.NoError,
			check: func(t *testing.T, e *Error) {
				assert.Empty(t, e.Message)
				assert.Nil(t, e.InnerError)
				assert.Nil(t, e.Details)
			},
		},
		{
			name:    "given throwSite and clientRequestId, then decodes them",
			input:   `{"code":"a","throwSite":"ts","clientRequestId":"cid"}`,
			wantErr: assert.NoError,
			check: func(t *testing.T, e *Error) {
				assert.Equal(t, "ts", e.ThrowSite)
				assert.Equal(t, "cid", e.ClientRequestID)
			},
		},
		{
			name:    "given non-string code, then returns error",
			input:   `{"code":42}`,
			wantErr: assert.Error,
		},
		{
			name:    "given non-object, then returns error",
			input:   `[1,2]`,
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Error
			err := json.Unmarshal([]byte(tt.input), &e)
			tt.wantErr(t, err)
			if err == nil && tt.check != nil {
				tt.check(t, &e)
			}
		})
	}
}

func TestError_MarshalJSON_PreservesAdditionalData(t *testing.T) {
	input := `{"code":"badRequest","message":"bad","innerError":{"code":"inner","request-id":"r1"},"extra":{"k":[1,2]}}`

	var e Error
	require.NoError(t, json.Unmarshal([]byte(input), &e))

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestError_String(t *testing.T) {
	e := &Error{
		Code:       "a",
		Message:    "outer",
		ThrowSite:  "ts",
		InnerError: &Error{Code: "b", Message: "inner"},
	}

	s := e.String()
	assert.Contains(t, s, "Code: a")
	assert.Contains(t, s, "Throw site: ts")
	assert.Contains(t, s, "Code: b")
	assert.Empty(t, (*Error)(nil).String())
}
