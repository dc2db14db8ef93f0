package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Recipients stores a message's recipient addresses as a jsonb column
type Recipients []string

func (r Recipients) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (r *Recipients) Scan(value interface{}) error {
	if value == nil {
		*r = Recipients{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for recipients: %T", value)
	}
	return json.Unmarshal(data, r)
}
