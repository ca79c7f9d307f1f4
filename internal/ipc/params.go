package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Params holds the raw fields of a request's "data" object.
type Params map[string]json.RawMessage

// MissingFieldError reports a required field absent from a request.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing %q", e.Field)
}

// FieldTypeError reports a field of the wrong JSON type.
type FieldTypeError struct {
	Field string
	Type  string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("Field %q is not of type %s", e.Field, e.Type)
}

func (p Params) raw(name string) (json.RawMessage, error) {
	raw, ok := p[name]
	if !ok || len(raw) == 0 {
		return nil, &MissingFieldError{Field: name}
	}
	return raw, nil
}

// Uint returns a non-negative integer field.
func (p Params) Uint(name string) (uint64, error) {
	raw, err := p.raw(name)
	if err != nil {
		return 0, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, &FieldTypeError{Field: name, Type: "number_unsigned"}
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, &FieldTypeError{Field: name, Type: "number_unsigned"}
	}
	n, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		return 0, &FieldTypeError{Field: name, Type: "number_unsigned"}
	}
	return n, nil
}

// String returns a string field.
func (p Params) String(name string) (string, error) {
	raw, err := p.raw(name)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &FieldTypeError{Field: name, Type: "string"}
	}
	return s, nil
}

// Set encodes v under name. It is used to build requests.
func (p Params) Set(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding field %q: %w", name, err)
	}
	p[name] = raw
	return nil
}
