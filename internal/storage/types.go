package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a []string persisted as a JSON array in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("storage: cannot scan %T into StringList", src)
	}
	out := []string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("storage: decode string list: %w", err)
		}
	}
	*l = out
	return nil
}

// RawJSON is an opaque JSON document kept verbatim in a TEXT column.
type RawJSON json.RawMessage

func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *RawJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = RawJSON("{}")
	case string:
		*j = RawJSON(v)
	case []byte:
		*j = append(RawJSON(nil), v...)
	default:
		return fmt.Errorf("storage: cannot scan %T into RawJSON", src)
	}
	return nil
}

func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return j, nil
}
