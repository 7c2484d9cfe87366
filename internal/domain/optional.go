package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// OptionalID distinguishes an absent field from an explicit null.
// Set is false when the field was not present in the payload.
type OptionalID struct {
	Set   bool
	Value *int64
}

// Some returns a set OptionalID carrying id.
func Some(id int64) OptionalID {
	return OptionalID{Set: true, Value: &id}
}

// Null returns a set OptionalID that explicitly clears the field.
func Null() OptionalID {
	return OptionalID{Set: true}
}

// IsNull reports whether the field was explicitly cleared.
func (o OptionalID) IsNull() bool {
	return o.Set && o.Value == nil
}

// UnmarshalJSON is only invoked when the key is present.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		// Some clients send numeric ids as strings.
		var s string
		if strErr := json.Unmarshal(data, &s); strErr != nil {
			return err
		}
		parsed, parseErr := strconv.ParseInt(s, 10, 64)
		if parseErr != nil {
			return parseErr
		}
		id = parsed
	}
	o.Value = &id
	return nil
}

// MarshalJSON renders the value or null.
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
