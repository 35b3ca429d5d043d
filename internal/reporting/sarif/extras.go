package sarif

import (
	"reflect"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
)

// Extras holds the members of a SARIF object that the structs in this package
// do not model (codeFlows, invocations, artifact indices, ...), so that
// native documents pass through Decode and Encode without losing data.
type Extras map[string]json.RawMessage

var modelledMembers sync.Map // reflect.Type -> map[string]bool

func modelled(t reflect.Type) map[string]bool {
	if m, ok := modelledMembers.Load(t); ok {
		return m.(map[string]bool)
	}
	m := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			m[name] = true
		}
	}
	modelledMembers.Store(t, m)
	return m
}

// decodeObject unmarshals data into v, a pointer to a method-free copy of a
// model type, and returns the members v has no field for.
func decodeObject(data []byte, v interface{}) (Extras, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}

	known := modelled(reflect.TypeOf(v).Elem())
	var extras Extras
	for name, raw := range members {
		if known[name] {
			continue
		}
		if extras == nil {
			extras = make(Extras)
		}
		extras[name] = raw
	}
	return extras, nil
}

// encodeObject marshals v, a method-free copy of a model type, and adds the
// extras that do not collide with a modelled member.
func encodeObject(v interface{}, extras Extras) ([]byte, error) {
	data, err := encoding.Marshal(v)
	if err != nil || len(extras) == 0 {
		return data, err
	}
	var members map[string]json.RawMessage
	if err := encoding.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	for name, raw := range extras {
		if _, ok := members[name]; !ok {
			members[name] = raw
		}
	}
	return encoding.Marshal(members)
}

func (l *Log) UnmarshalJSON(data []byte) error {
	type plain Log
	extras, err := decodeObject(data, (*plain)(l))
	l.Extras = extras
	return err
}

func (l Log) MarshalJSON() ([]byte, error) {
	type plain Log
	return encodeObject(plain(l), l.Extras)
}

func (r *Run) UnmarshalJSON(data []byte) error {
	type plain Run
	extras, err := decodeObject(data, (*plain)(r))
	r.Extras = extras
	return err
}

func (r Run) MarshalJSON() ([]byte, error) {
	type plain Run
	return encodeObject(plain(r), r.Extras)
}

func (t *Tool) UnmarshalJSON(data []byte) error {
	type plain Tool
	extras, err := decodeObject(data, (*plain)(t))
	t.Extras = extras
	return err
}

func (t Tool) MarshalJSON() ([]byte, error) {
	type plain Tool
	return encodeObject(plain(t), t.Extras)
}

func (c *ToolComponent) UnmarshalJSON(data []byte) error {
	type plain ToolComponent
	extras, err := decodeObject(data, (*plain)(c))
	c.Extras = extras
	return err
}

func (c ToolComponent) MarshalJSON() ([]byte, error) {
	type plain ToolComponent
	return encodeObject(plain(c), c.Extras)
}

func (d *ReportingDescriptor) UnmarshalJSON(data []byte) error {
	type plain ReportingDescriptor
	extras, err := decodeObject(data, (*plain)(d))
	d.Extras = extras
	return err
}

func (d ReportingDescriptor) MarshalJSON() ([]byte, error) {
	type plain ReportingDescriptor
	return encodeObject(plain(d), d.Extras)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	extras, err := decodeObject(data, (*plain)(r))
	r.Extras = extras
	return err
}

func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return encodeObject(plain(r), r.Extras)
}

func (l *Location) UnmarshalJSON(data []byte) error {
	type plain Location
	extras, err := decodeObject(data, (*plain)(l))
	l.Extras = extras
	return err
}

func (l Location) MarshalJSON() ([]byte, error) {
	type plain Location
	return encodeObject(plain(l), l.Extras)
}

func (p *PhysicalLocation) UnmarshalJSON(data []byte) error {
	type plain PhysicalLocation
	extras, err := decodeObject(data, (*plain)(p))
	p.Extras = extras
	return err
}

func (p PhysicalLocation) MarshalJSON() ([]byte, error) {
	type plain PhysicalLocation
	return encodeObject(plain(p), p.Extras)
}

func (a *ArtifactLocation) UnmarshalJSON(data []byte) error {
	type plain ArtifactLocation
	extras, err := decodeObject(data, (*plain)(a))
	a.Extras = extras
	return err
}

func (a ArtifactLocation) MarshalJSON() ([]byte, error) {
	type plain ArtifactLocation
	return encodeObject(plain(a), a.Extras)
}

func (r *Region) UnmarshalJSON(data []byte) error {
	type plain Region
	extras, err := decodeObject(data, (*plain)(r))
	r.Extras = extras
	return err
}

func (r Region) MarshalJSON() ([]byte, error) {
	type plain Region
	return encodeObject(plain(r), r.Extras)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	extras, err := decodeObject(data, (*plain)(m))
	m.Extras = extras
	return err
}

func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return encodeObject(plain(m), m.Extras)
}
