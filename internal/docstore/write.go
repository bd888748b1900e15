package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Write is one entry of an atomic batch.
type Write struct {
	Operation Operation
	Key       string
	Body      any
	Fields    map[string]any
	Field     string
	Values    []any
}

// SetWrite replaces the document under key with body.
func SetWrite(key string, body any) Write {
	return Write{Operation: OperationSet, Key: key, Body: body}
}

// UpdateWrite merges fields into the existing document under key.
func UpdateWrite(key string, fields map[string]any) Write {
	return Write{Operation: OperationUpdate, Key: key, Fields: fields}
}

// AppendWrite appends values to the array field of the existing document under key.
func AppendWrite(key, field string, values ...any) Write {
	return Write{Operation: OperationArrayAppend, Key: key, Field: field, Values: values}
}

// DeleteWrite removes the document under key.
func DeleteWrite(key string) Write {
	return Write{Operation: OperationDelete, Key: key}
}

func encodeBody(body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if _, err := decodeObject(encoded); err != nil {
		return nil, err
	}
	return encoded, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: document body must be a JSON object", ErrInvalidInput)
	}
	object := make(map[string]json.RawMessage)
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return nil, err
	}
	return object, nil
}

func mergeFields(body []byte, fields map[string]any) ([]byte, error) {
	object, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	for name, value := range fields {
		if name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidField)
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		object[name] = encoded
	}
	return json.Marshal(object)
}

func appendValues(body []byte, field string, values []any) ([]byte, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: empty field name", ErrInvalidField)
	}
	object, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	items := make([]json.RawMessage, 0, len(values))
	if current, ok := object[field]; ok && !bytes.Equal(bytes.TrimSpace(current), []byte("null")) {
		if err := json.Unmarshal(current, &items); err != nil {
			return nil, fmt.Errorf("%w: field %q is not an array", ErrInvalidField, field)
		}
	}
	for _, value := range values {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		items = append(items, encoded)
	}
	encodedItems, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	object[field] = encodedItems
	return json.Marshal(object)
}
