package utils

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// JSONSafe converts v into objects, slices and scalars that encoding/json can
// always encode: NaN and ±Inf become null. Struct fields follow their json tags,
// keep their declaration order and embedded structs are flattened into their
// parent, the outer field winning a name clash.
func JSONSafe(v any) any {
	return jsonSafe(reflect.ValueOf(v))
}

func jsonSafe(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		if !v.CanInterface() || (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
			return nil
		}
		return v.Interface()
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return jsonSafe(v.Elem())
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = jsonSafe(v.Index(i))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(scalar(iter.Key()))] = jsonSafe(iter.Value())
		}
		return out
	case reflect.Struct:
		out := &object{values: map[string]any{}}
		addFields(out, v, nil)
		return out
	}
	return scalar(v)
}

// scalar returns the value of v, including one reached through an unexported
// embedded struct.
func scalar(v reflect.Value) any {
	if v.CanInterface() {
		return v.Interface()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	}
	return nil
}

// object is a JSON object that encodes its keys in insertion order.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// addFields appends the fields of struct v to out. Names in taken belong to an
// enclosing struct and are left alone.
func addFields(out *object, v reflect.Value, taken map[string]bool) {
	t := v.Type()
	own := map[string]bool{}
	for name := range taken {
		own[name] = true
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if _, ok := embedded(f, v.Field(i)); ok {
			continue
		}
		if name, _, skip := jsonField(f); f.IsExported() && !skip {
			own[name] = true
		}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		if ev, ok := embedded(f, fv); ok {
			if ev.IsValid() {
				addFields(out, ev, own)
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		name, omitEmpty, skip := jsonField(f)
		if skip || taken[name] {
			continue
		}
		if _, dup := out.values[name]; dup {
			continue
		}
		if omitEmpty && isEmpty(fv) {
			continue
		}
		out.keys = append(out.keys, name)
		out.values[name] = jsonSafe(fv)
	}
}

// embedded reports whether f is an untagged embedded struct (or pointer to one)
// whose fields are promoted. The returned value is invalid for a nil pointer.
func embedded(f reflect.StructField, fv reflect.Value) (reflect.Value, bool) {
	if !f.Anonymous || f.Tag.Get("json") != "" {
		return reflect.Value{}, false
	}
	ft := f.Type
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
		if ft.Kind() != reflect.Struct || !f.IsExported() {
			return reflect.Value{}, false
		}
		if fv.IsNil() {
			return reflect.Value{}, true
		}
		return fv.Elem(), true
	}
	if ft.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	if ft.Implements(jsonMarshalerType) || ft.Implements(textMarshalerType) {
		return reflect.Value{}, false
	}
	return fv, true
}

func jsonField(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return v.Len() == 0
	}
	return v.IsZero()
}
