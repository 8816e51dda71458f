package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// JSON column types. The durable store keeps list-valued analysis fields
// as JSON text columns; these types implement sql.Scanner and
// driver.Valuer so GORM can read and write them transparently.

// JSONStringArray is a []string stored as a JSON text column.
type JSONStringArray []string

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(src interface{}) error {
	b, err := jsonColumnBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*a = JSONStringArray{}
		return nil
	}
	return json.Unmarshal(b, (*[]string)(a))
}

// ExpressionPair is one alternative-expression suggestion:
// the original phrase and the proposed rewording.
type ExpressionPair struct {
	Original    string `json:"original"`
	Alternative string `json:"alternative"`
}

// JSONPairArray is a []ExpressionPair stored as a JSON text column.
type JSONPairArray []ExpressionPair

// Value implements driver.Valuer.
func (p JSONPairArray) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]ExpressionPair(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *JSONPairArray) Scan(src interface{}) error {
	b, err := jsonColumnBytes(src)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*p = JSONPairArray{}
		return nil
	}
	return json.Unmarshal(b, (*[]ExpressionPair)(p))
}

func jsonColumnBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
