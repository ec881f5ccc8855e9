package fingerprint

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"
	"time"
)

// Encoder is implemented by argument types that define their own
// deterministic encoding. AppendFingerprint appends the encoding to b and
// returns the extended slice; equal values must append equal bytes.
//
// The encoding is prefixed with the value's type name, so two Encoder types
// appending the same bytes still fingerprint differently.
//
// Without Encoder the default scheme supports nil, booleans, strings, byte
// slices, every integer and float kind (including named types), time.Time,
// pointers to supported values, slices and arrays of supported values, and
// maps keyed by strings. Values nested more than 64 levels deep (including
// self-referencing values) are rejected.
type Encoder interface {
	AppendFingerprint(b []byte) []byte
}

// Field tags. Each tag is followed by a little-endian uint64 payload length
// and the payload, so no two distinct inputs share an encoding.
const (
	tagOwner   = 'o'
	tagArgs    = 'a'
	tagKwargs  = 'k'
	tagNil     = 'n'
	tagBool    = 'b'
	tagString  = 's'
	tagBytes   = 'y'
	tagInt     = 'i'
	tagUint    = 'u'
	tagFloat   = 'f'
	tagTime    = 't'
	tagList    = 'l'
	tagMap     = 'm'
	tagEncoded = 'e'
)

// maxDepth bounds nesting so cyclic values fail instead of recursing forever.
const maxDepth = 64

var (
	timeType    = reflect.TypeFor[time.Time]()
	encoderType = reflect.TypeFor[Encoder]()
)

func appendCanonical(b []byte, owner string, args []any, kwargs KW) ([]byte, error) {
	b = appendField(b, tagOwner, []byte(owner))

	b = append(b, tagArgs)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(args)))
	for i, arg := range args {
		var err error
		if b, err = appendValue(b, arg, 0); err != nil {
			return nil, fmt.Errorf("positional argument %d: %w", i, err)
		}
	}

	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	slices.Sort(names)

	b = append(b, tagKwargs)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(names)))
	for _, name := range names {
		b = appendField(b, tagString, []byte(name))
		var err error
		if b, err = appendValue(b, kwargs[name], 0); err != nil {
			return nil, fmt.Errorf("keyword argument %q: %w", name, err)
		}
	}
	return b, nil
}

func appendField(b []byte, tag byte, payload []byte) []byte {
	b = append(b, tag)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(payload)))
	return append(b, payload...)
}

func appendValue(b []byte, v any, depth int) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return appendField(b, tagNil, nil), nil
	case Encoder:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return appendField(b, tagNil, nil), nil
		}
		payload := appendField(nil, tagString, []byte(typeName(reflect.TypeOf(v))))
		return appendField(b, tagEncoded, v.AppendFingerprint(payload)), nil
	case string:
		return appendField(b, tagString, []byte(v)), nil
	case []byte:
		return appendField(b, tagBytes, v), nil
	case time.Time:
		return appendField(b, tagTime, []byte(v.UTC().Format(time.RFC3339Nano))), nil
	}
	return appendReflect(b, reflect.ValueOf(v), depth)
}

func appendReflect(b []byte, rv reflect.Value, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nested deeper than %d levels", ErrUnsupportedArg, maxDepth)
	}
	if (rv.Type().Implements(encoderType) || rv.Type() == timeType) && rv.CanInterface() {
		return appendValue(b, rv.Interface(), depth)
	}

	var scratch [8]byte
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			scratch[0] = 1
		}
		return appendField(b, tagBool, scratch[:1]), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		binary.LittleEndian.PutUint64(scratch[:], uint64(rv.Int()))
		return appendField(b, tagInt, scratch[:]), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		binary.LittleEndian.PutUint64(scratch[:], rv.Uint())
		return appendField(b, tagUint, scratch[:]), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		switch {
		case f == 0:
			f = 0 // -0 encodes as +0
		case math.IsNaN(f):
			f = math.NaN()
		}
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(f))
		return appendField(b, tagFloat, scratch[:]), nil
	case reflect.String:
		return appendField(b, tagString, []byte(rv.String())), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return appendField(b, tagNil, nil), nil
		}
		if rv.Kind() == reflect.Pointer {
			depth++
		}
		return appendReflect(b, rv.Elem(), depth)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return appendField(b, tagBytes, rv.Bytes()), nil
		}
		var payload []byte
		for i := range rv.Len() {
			var err error
			if payload, err = appendReflect(payload, rv.Index(i), depth+1); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return appendField(b, tagList, payload), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedArg, rv.Type().Key())
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			switch {
			case a.String() < b.String():
				return -1
			case a.String() > b.String():
				return 1
			}
			return 0
		})
		var payload []byte
		for _, k := range keys {
			payload = appendField(payload, tagString, []byte(k.String()))
			var err error
			if payload, err = appendReflect(payload, rv.MapIndex(k), depth+1); err != nil {
				return nil, fmt.Errorf("map key %q: %w", k.String(), err)
			}
		}
		return appendField(b, tagMap, payload), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedArg, rv.Type())
}

// typeName identifies an Encoder's type. Pointers are named by their element
// so that v and &v encode alike.
func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
