// Package paramset holds the typed, named parameter lists that scene
// construction calls carry, and their serialized form used on the wire.
package paramset

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Param types
const (
	TypeInt     = "integer"
	TypeBool    = "bool"
	TypeFloat   = "float"
	TypePoint   = "point"
	TypeVector  = "vector"
	TypeNormal  = "normal"
	TypeColor   = "color"
	TypeString  = "string"
	TypeTexture = "texture"
)

// FileParams are the string parameters whose value names a file that must be
// shipped alongside the parameter set when replicating to slaves.
var FileParams = []string{"mapname", "iesname", "filename"}

// Param is a single named parameter. Only the slice matching Type is used.
type Param struct {
	Type    string
	Name    string
	Ints    []int32
	Floats  []float32
	Bools   []bool
	Strings []string
}

// ParamSet is an ordered list of parameters with unique names. Adding a
// parameter with an existing name replaces it.
type ParamSet struct {
	Params []Param
}

// New creates an empty parameter set
func New() *ParamSet {
	return &ParamSet{}
}

func (ps *ParamSet) add(p Param) {
	for i := range ps.Params {
		if ps.Params[i].Name == p.Name {
			ps.Params[i] = p
			return
		}
	}
	ps.Params = append(ps.Params, p)
}

// AddInt adds an integer parameter
func (ps *ParamSet) AddInt(name string, v ...int32) {
	ps.add(Param{Type: TypeInt, Name: name, Ints: v})
}

// AddBool adds a bool parameter
func (ps *ParamSet) AddBool(name string, v ...bool) {
	ps.add(Param{Type: TypeBool, Name: name, Bools: v})
}

// AddFloat adds a float parameter
func (ps *ParamSet) AddFloat(name string, v ...float32) {
	ps.add(Param{Type: TypeFloat, Name: name, Floats: v})
}

// AddPoint adds a point parameter (xyz triples)
func (ps *ParamSet) AddPoint(name string, v ...float32) {
	ps.add(Param{Type: TypePoint, Name: name, Floats: v})
}

// AddVector adds a vector parameter (xyz triples)
func (ps *ParamSet) AddVector(name string, v ...float32) {
	ps.add(Param{Type: TypeVector, Name: name, Floats: v})
}

// AddNormal adds a normal parameter (xyz triples)
func (ps *ParamSet) AddNormal(name string, v ...float32) {
	ps.add(Param{Type: TypeNormal, Name: name, Floats: v})
}

// AddColor adds an RGB color parameter
func (ps *ParamSet) AddColor(name string, v ...float32) {
	ps.add(Param{Type: TypeColor, Name: name, Floats: v})
}

// AddString adds a string parameter
func (ps *ParamSet) AddString(name string, v ...string) {
	ps.add(Param{Type: TypeString, Name: name, Strings: v})
}

// AddTexture adds a texture reference parameter
func (ps *ParamSet) AddTexture(name string, v string) {
	ps.add(Param{Type: TypeTexture, Name: name, Strings: []string{v}})
}

// Erase removes a parameter by name and reports whether it existed
func (ps *ParamSet) Erase(name string) bool {
	for i := range ps.Params {
		if ps.Params[i].Name == name {
			ps.Params = append(ps.Params[:i], ps.Params[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the parameter with the given name
func (ps *ParamSet) Lookup(name string) (Param, bool) {
	if ps == nil {
		return Param{}, false
	}
	for _, p := range ps.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// FindOneInt returns the first value of an integer parameter or def
func (ps *ParamSet) FindOneInt(name string, def int) int {
	if p, ok := ps.Lookup(name); ok && p.Type == TypeInt && len(p.Ints) > 0 {
		return int(p.Ints[0])
	}
	return def
}

// FindOneBool returns the first value of a bool parameter or def
func (ps *ParamSet) FindOneBool(name string, def bool) bool {
	if p, ok := ps.Lookup(name); ok && p.Type == TypeBool && len(p.Bools) > 0 {
		return p.Bools[0]
	}
	return def
}

// FindOneFloat returns the first value of a float parameter or def
func (ps *ParamSet) FindOneFloat(name string, def float32) float32 {
	if p, ok := ps.Lookup(name); ok && p.Type == TypeFloat && len(p.Floats) > 0 {
		return p.Floats[0]
	}
	return def
}

// FindFloats returns all values of a float-valued parameter (float, point,
// vector, normal or color)
func (ps *ParamSet) FindFloats(name string) []float32 {
	if p, ok := ps.Lookup(name); ok && len(p.Floats) > 0 {
		return p.Floats
	}
	return nil
}

// FindOneString returns the first value of a string or texture parameter or def
func (ps *ParamSet) FindOneString(name string, def string) string {
	if p, ok := ps.Lookup(name); ok && (p.Type == TypeString || p.Type == TypeTexture) && len(p.Strings) > 0 {
		return p.Strings[0]
	}
	return def
}

// Clone returns a deep copy
func (ps *ParamSet) Clone() *ParamSet {
	out := &ParamSet{Params: make([]Param, len(ps.Params))}
	for i, p := range ps.Params {
		out.Params[i] = Param{
			Type:    p.Type,
			Name:    p.Name,
			Ints:    append([]int32(nil), p.Ints...),
			Floats:  append([]float32(nil), p.Floats...),
			Bools:   append([]bool(nil), p.Bools...),
			Strings: append([]string(nil), p.Strings...),
		}
	}
	return out
}

// MarshalBinary serializes the parameter set
func (ps *ParamSet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ps.Params); err != nil {
		return nil, fmt.Errorf("paramset: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the parameter set with serialized data
func (ps *ParamSet) UnmarshalBinary(data []byte) error {
	var params []Param
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&params); err != nil {
		return fmt.Errorf("paramset: decode: %w", err)
	}
	ps.Params = params
	return nil
}
