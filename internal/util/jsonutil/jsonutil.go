package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no JSON value can be located in a model reply.
var ErrNoJSON = errors.New("jsonutil: no JSON value found")

// MarshalNoEscape encodes v into JSON without escaping <, >, & into <, etc.
// CJK text stays readable in stored collections and logs.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Extract locates the JSON value inside a model reply. It drops markdown
// code fences and any prose before the first '{' or '[' and after the
// matching closing bracket.
func Extract(raw []byte) ([]byte, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the language tag line, e.g. ```json
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, ErrNoJSON
	}
	open := s[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	end := strings.LastIndexByte(s, closeCh)
	if end <= start {
		return nil, ErrNoJSON
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil, ErrNoJSON
	}
	return candidate, nil
}

// UnmarshalFlex unmarshals a model reply into v with best effort:
//  1. direct unmarshal
//  2. extract the JSON value from fences or prose
//  3. unwrap a JSON string that itself holds the payload
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	if ext, xerr := Extract(raw); xerr == nil {
		if err2 := json.Unmarshal(ext, v); err2 == nil {
			return nil
		}
	}
	var inner string
	if json.Unmarshal(raw, &inner) == nil {
		if ext, xerr := Extract([]byte(inner)); xerr == nil {
			return json.Unmarshal(ext, v)
		}
	}
	return err
}

// UnmarshalList decodes either a bare array or an object carrying the array
// under key, e.g. {"cards":[...]}. Providers disagree on which one a
// schema with a top-level list produces.
func UnmarshalList[T any](raw []byte, key string, out *[]T) error {
	ext, err := Extract(raw)
	if err != nil {
		var inner string
		if json.Unmarshal(raw, &inner) != nil {
			return err
		}
		if ext, err = Extract([]byte(inner)); err != nil {
			return err
		}
	}
	if len(ext) > 0 && ext[0] == '[' {
		return json.Unmarshal(ext, out)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(ext, &wrapped); err != nil {
		return err
	}
	list, ok := wrapped[key]
	if !ok {
		return ErrNoJSON
	}
	return json.Unmarshal(list, out)
}
