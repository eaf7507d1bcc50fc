package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errNotArray  = errors.New("top level is not a JSON array")
	errNotObject = errors.New("entry is not a JSON object")
)

// ParsePayload decodes a directory snapshot into brewery records following
// BreweryFields. Absent fields and JSON nulls become nil, numbers and booleans
// keep their literal text, and fields outside the schema are ignored. Objects
// or arrays in a schema field are rejected with a *ParseError.
func ParsePayload(payload string) ([]BreweryRecord, error) {
	data := bytes.TrimSpace([]byte(payload))
	if len(data) == 0 || data[0] != '[' {
		return nil, &ParseError{Index: -1, Err: errNotArray}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}

	records := make([]BreweryRecord, 0, len(entries))
	for i, entry := range entries {
		rec, err := parseEntry(i, entry)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseEntry(index int, entry json.RawMessage) (BreweryRecord, error) {
	entry = bytes.TrimSpace(entry)
	if len(entry) == 0 || entry[0] != '{' {
		return BreweryRecord{}, &ParseError{Index: index, Err: errNotObject}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return BreweryRecord{}, &ParseError{Index: index, Err: err}
	}

	var rec BreweryRecord
	for _, f := range BreweryFields {
		raw, ok := fields[f.Name]
		if !ok {
			continue
		}
		v, err := coerceText(raw)
		if err != nil {
			return BreweryRecord{}, &ParseError{Index: index, Field: f.Name, Err: err}
		}
		f.Set(&rec, v)
	}
	return rec, nil
}

// coerceText reads a scalar JSON value as text. null yields nil.
func coerceText(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	switch c := raw[0]; {
	case c == 'n':
		return nil, nil
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case c == 't' || c == 'f' || c == '-' || (c >= '0' && c <= '9'):
		s := string(raw)
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: got %s", ErrTypeMismatch, jsonKind(c))
	}
}

func jsonKind(c byte) string {
	switch c {
	case '{':
		return "object"
	case '[':
		return "array"
	default:
		return "unknown value"
	}
}
