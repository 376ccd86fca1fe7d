// Package itemtree turns the binary item payload of a listing into a plain tree
// of maps, slices and scalars and searches that tree by key.
package itemtree

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"reflect"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"

	"auction-pipeline/models"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decode reads a base64 payload, inflates it when it is gzip-compressed and
// parses the NBT tag tree inside.
//
// The returned value only contains map[string]any, []any, string, int64 and
// float64. Any other leaf the codec produces is converted to its string form.
func Decode(blob string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", models.ErrDecode, err)
	}

	var r io.Reader = bytes.NewReader(raw)
	if bytes.HasPrefix(raw, gzipMagic) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", models.ErrDecode, err)
		}
		defer zr.Close()
		r = zr
	}

	var tree any
	if _, err := nbt.NewDecoder(r).Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: nbt: %v", models.ErrDecode, err)
	}
	return Plain(tree), nil
}

// Plain converts a codec value into the plain tree shape. It never fails.
func Plain(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case int64:
		return t
	case float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Plain(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Plain(child)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		if rv.Bool() {
			return int64(1)
		}
		return int64(0)
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Plain(iter.Value().Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Plain(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}
