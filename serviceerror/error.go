package serviceerror

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Error is the error model carried in the service's error envelope:
//
//	{"error": {"code": "...", "message": "...", "innerError": {...}, "details": [...]}}
//
// Fields the client does not know about are kept in AdditionalData and
// written back out by MarshalJSON, so nothing the service sent is lost.
type Error struct {
	Code            string
	Message         string
	Target          string
	Details         []ErrorDetail
	InnerError      *Error
	ThrowSite       string
	ClientRequestID string

	// AdditionalData holds unrecognized fields keyed by their wire name.
	AdditionalData map[string]json.RawMessage
}

// ErrorDetail is one entry of the envelope's "details" array.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Target  string `json:"target,omitempty"`
}

// envelope is the top-level error document.
type envelope struct {
	Error *Error `json:"error"`
}

// IsMatch reports whether code matches this error's code or the code of any
// error in its InnerError chain. Comparison is case-insensitive.
//
// An empty code is a programming error and panics.
func (e *Error) IsMatch(code string) bool {
	if code == "" {
		panic("serviceerror: IsMatch called with an empty error code")
	}

	for cur := e; cur != nil; cur = cur.InnerError {
		if strings.EqualFold(cur.Code, code) {
			return true
		}
	}
	return false
}

// String renders the error chain for logs.
func (e *Error) String() string {
	if e == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Code: %s\nMessage: %s", e.Code, e.Message)
	if e.ThrowSite != "" {
		fmt.Fprintf(&sb, "\nThrow site: %s", e.ThrowSite)
	}
	if e.ClientRequestID != "" {
		fmt.Fprintf(&sb, "\nClient request ID: %s", e.ClientRequestID)
	}
	if e.InnerError != nil {
		sb.WriteString("\nInner error:\n")
		sb.WriteString(e.InnerError.String())
	}
	return sb.String()
}

// UnmarshalJSON decodes known fields case-insensitively and keeps the rest.
func (e *Error) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = Error{}
	for key, raw := range fields {
		var err error
		switch strings.ToLower(key) {
		case "code":
			err = unmarshalString(raw, &e.Code)
		case "message":
			err = unmarshalString(raw, &e.Message)
		case "target":
			err = unmarshalString(raw, &e.Target)
		case "throwsite":
			err = unmarshalString(raw, &e.ThrowSite)
		case "clientrequestid":
			err = unmarshalString(raw, &e.ClientRequestID)
		case "details":
			if !isNull(raw) {
				err = json.Unmarshal(raw, &e.Details)
			}
		case "innererror":
			if !isNull(raw) {
				inner := &Error{}
				err = json.Unmarshal(raw, inner)
				e.InnerError = inner
			}
		default:
			if e.AdditionalData == nil {
				e.AdditionalData = make(map[string]json.RawMessage)
			}
			e.AdditionalData[key] = append(json.RawMessage(nil), raw...)
		}
		if err != nil {
			return fmt.Errorf("decode error field %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON writes known fields under their canonical names followed by
// AdditionalData.
func (e Error) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.AdditionalData)+7)
	for k, v := range e.AdditionalData {
		out[k] = v
	}

	out["code"] = e.Code
	if e.Message != "" {
		out["message"] = e.Message
	}
	if e.Target != "" {
		out["target"] = e.Target
	}
	if len(e.Details) > 0 {
		out["details"] = e.Details
	}
	if e.InnerError != nil {
		out["innerError"] = e.InnerError
	}
	if e.ThrowSite != "" {
		out["throwSite"] = e.ThrowSite
	}
	if e.ClientRequestID != "" {
		out["clientRequestId"] = e.ClientRequestID
	}
	return json.Marshal(out)
}

func unmarshalString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
