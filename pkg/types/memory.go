package types

import (
	"encoding/json"
	"time"
)

// Value is an opaque tagged union for the free-form context map attached to
// a memory. It holds exactly one of string/float64/bool/nil/[]Value/map,
// mirroring the loosely-typed "context"/"metadata" maps the core consumes
// from callers without ever leaking that looseness into engine fields.
type Value struct {
	str    string
	num    float64
	boo    bool
	arr    []Value
	obj    map[string]Value
	isNull bool
	kind   valueKind
}

type valueKind int

const (
	KindNull valueKind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindMap
)

func NewStringValue(s string) Value          { return Value{kind: KindString, str: s} }
func NewNumberValue(n float64) Value         { return Value{kind: KindNumber, num: n} }
func NewBoolValue(b bool) Value              { return Value{kind: KindBool, boo: b} }
func NewArrayValue(v []Value) Value          { return Value{kind: KindArray, arr: v} }
func NewMapValue(v map[string]Value) Value   { return Value{kind: KindMap, obj: v} }
func NewNullValue() Value                    { return Value{kind: KindNull, isNull: true} }

func (v Value) Kind() valueKind { return v.kind }

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boo, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.obj, true
}

// MarshalJSON renders the Value as the JSON literal it represents.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.boo)
	case KindArray:
		return json.Marshal(v.arr)
	case KindMap:
		return json.Marshal(v.obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reconstructs a Value from an arbitrary JSON literal.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return NewNullValue()
	case string:
		return NewStringValue(t)
	case float64:
		return NewNumberValue(t)
	case bool:
		return NewBoolValue(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = fromInterface(e)
		}
		return NewArrayValue(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = fromInterface(e)
		}
		return NewMapValue(out)
	default:
		return NewNullValue()
	}
}

// Memory is the sole first-class entity stored and retrieved by the engine.
type Memory struct {
	ID              string             `json:"id"`
	TenantID        string             `json:"tenant_id"`
	AgentID         string             `json:"agent_id,omitempty"`
	Type            MemoryType         `json:"type"`
	Content         string             `json:"content"`
	Embedding       []float32          `json:"embedding"`
	Confidence      float64            `json:"confidence"`
	Importance      float64            `json:"importance"`
	EmotionalWeight float64            `json:"emotional_weight,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	Context         map[string]Value   `json:"context,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	LastAccessedAt  time.Time          `json:"last_accessed_at"`
	AccessCount     int64              `json:"access_count"`
	TTL             *time.Time         `json:"ttl,omitempty"`
}

// Expired reports whether the memory's TTL, if set, has passed as of now.
func (m *Memory) Expired(now time.Time) bool {
	return m.TTL != nil && now.After(*m.TTL)
}

// Clone returns a deep-enough copy of m so that callers never hold a mutable
// alias into engine-owned state; slices and the embedding are copied.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Embedding != nil {
		clone.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.Tags != nil {
		clone.Tags = append([]string(nil), m.Tags...)
	}
	if m.Context != nil {
		clone.Context = make(map[string]Value, len(m.Context))
		for k, v := range m.Context {
			clone.Context[k] = v
		}
	}
	if m.TTL != nil {
		ttl := *m.TTL
		clone.TTL = &ttl
	}
	return &clone
}

// Patch describes a partial update to a Memory. Nil fields are left
// untouched; id, tenant_id and created_at are never mutable via Patch.
type Patch struct {
	Type            *MemoryType
	Content         *string
	Embedding       []float32
	Confidence      *float64
	Importance      *float64
	EmotionalWeight *float64
	Tags            []string
	Context         map[string]Value
	TTL             **time.Time
}
