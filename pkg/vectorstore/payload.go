package vectorstore

import "encoding/json"

// Kind identifies the scalar variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	// KindJSON holds the JSON encoding of a value that is not one of the
	// scalar kinds.
	KindJSON
)

// Value is a payload field restricted to scalar variants plus a JSON
// escape hatch, keeping the store-adapter contract backend-neutral.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	b    bool
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value     { return Value{kind: KindInt, num: i} }
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }

// JSONValue encodes v as JSON. Values that cannot be marshaled degrade to
// an empty JSON object rather than failing the write.
func JSONValue(v any) Value {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("{}")
	}
	return Value{kind: KindJSON, str: string(b)}
}

func (v Value) Kind() Kind { return v.kind }

// StringValue returns the string content for KindString and KindJSON
// values, and "" otherwise.
func (v Value) StringValue() string { return v.str }

func (v Value) IntValue() int64     { return v.num }
func (v Value) FloatValue() float64 { return v.flt }
func (v Value) BoolValue() bool     { return v.b }

// Interface returns the natural Go representation of the value. KindJSON
// values are decoded; undecodable content falls back to the raw string.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.b
	case KindJSON:
		var out any
		if err := json.Unmarshal([]byte(v.str), &out); err != nil {
			return v.str
		}
		return out
	}
	return nil
}

// Payload is the metadata map attached to a point.
type Payload map[string]Value

// PayloadFromMap converts arbitrary metadata into a Payload. Scalars map
// to their native kinds; everything else goes through the JSON escape
// hatch.
func PayloadFromMap(m map[string]any) Payload {
	p := make(Payload, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			p[k] = String(val)
		case int:
			p[k] = Int(int64(val))
		case int64:
			p[k] = Int(val)
		case float64:
			p[k] = Float(val)
		case float32:
			p[k] = Float(float64(val))
		case bool:
			p[k] = Bool(val)
		default:
			p[k] = JSONValue(val)
		}
	}
	return p
}

// ToMap converts the payload back to plain Go values.
func (p Payload) ToMap() map[string]any {
	m := make(map[string]any, len(p))
	for k, v := range p {
		m[k] = v.Interface()
	}
	return m
}
