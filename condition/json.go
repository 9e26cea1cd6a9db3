package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// node is the wire form of a Condition.
type node struct {
	Op         string          `json:"op"`
	Field      string          `json:"field,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Conditions []Condition     `json:"conditions,omitempty"`
	Condition  *Condition      `json:"condition,omitempty"`
}

// MarshalJSON implements json.Marshaler. The empty condition encodes as null.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.IsZero():
		return []byte("null"), nil
	case c.op == OpAnd || c.op == OpOr:
		return json.Marshal(node{Op: c.op.String(), Conditions: c.children})
	case c.op == OpNot:
		return json.Marshal(node{Op: c.op.String(), Condition: &c.children[0]})
	}
	n := node{Op: c.op.String(), Field: c.field}
	if !c.op.unary() {
		v, err := json.Marshal(c.value)
		if err != nil {
			return nil, fmt.Errorf("condition: encode %s value: %w", c.field, err)
		}
		n.Value = v
	}
	return json.Marshal(n)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers are decoded as
// json.Number so that integer and decimal operands keep their exact text.
func (c *Condition) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Condition{}
		return nil
	}
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	op, err := ParseOp(n.Op)
	if err != nil {
		return err
	}
	switch {
	case op == OpAnd || op == OpOr:
		if n.Field != "" || n.Condition != nil {
			return fmt.Errorf("condition: %s takes only conditions", op)
		}
		*c = Condition{op: op, children: n.Conditions}
		return nil
	case op == OpNot:
		if n.Condition == nil {
			return fmt.Errorf("condition: not requires a condition")
		}
		*c = Not(*n.Condition)
		return nil
	}
	if n.Field == "" {
		return fmt.Errorf("condition: %s requires a field", op)
	}
	var v any
	if len(n.Value) > 0 {
		dec := json.NewDecoder(bytes.NewReader(n.Value))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("condition: decode %s value: %w", n.Field, err)
		}
	}
	switch op {
	case OpIn, OpNotIn:
		vs, ok := v.([]any)
		if !ok {
			return fmt.Errorf("condition: %s requires a list value", op)
		}
		*c = leaf(op, n.Field, vs)
	case OpLike, OpContains, OpStartsWith, OpEndsWith:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("condition: %s requires a string value", op)
		}
		*c = leaf(op, n.Field, s)
	case OpIsNull, OpIsNotNull, OpIsEmpty, OpIsNotEmpty, OpIsDefined:
		*c = leaf(op, n.Field, nil)
	default:
		*c = leaf(op, n.Field, v)
	}
	return nil
}

// Parse decodes a condition from its JSON form.
func Parse(data []byte) (Condition, error) {
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return Condition{}, err
	}
	return c, nil
}
