package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap is a JSON column holding map[string]string
type StringMap map[string]string

// Scan implements sql.Scanner interface
func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal StringMap value: %v", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	result := make(map[string]string)
	err := json.Unmarshal(raw, &result)
	*m = StringMap(result)
	return err
}

// Value implements driver.Valuer interface
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
