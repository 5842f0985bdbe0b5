package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntList jsonb 存储的整数数组
type IntList []int

// Scan 实现 sql.Scanner 接口
func (l *IntList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Value 实现 driver.Valuer 接口
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// scanJSON 兼容 postgres ([]byte) 与 sqlite (string) 两种驱动返回值
func scanJSON(value interface{}, target interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, target)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), target)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
}
