// Package nbttest builds item payloads for tests. It writes the subset of the
// NBT format the decoder understands, from the same plain tree shape Decode
// returns, so tests can round-trip trees through real payload bytes.
package nbttest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/klauspost/compress/gzip"
)

const (
	tagEnd byte = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
)

// Marshal writes root as an unnamed root compound.
func Marshal(root map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tagCompound)
	writeString(&buf, "")
	if err := writePayload(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode returns root as a base64 payload, gzip-compressed when gzipped is set.
func Encode(root map[string]any, gzipped bool) (string, error) {
	data, err := Marshal(root)
	if err != nil {
		return "", err
	}
	if gzipped {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(data); err != nil {
			return "", err
		}
		if err := zw.Close(); err != nil {
			return "", err
		}
		data = zbuf.Bytes()
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// MustEncode is Encode with gzip for test fixtures; it panics on error.
func MustEncode(root map[string]any) string {
	s, err := Encode(root, true)
	if err != nil {
		panic(err)
	}
	return s
}

func tagOf(v any) (byte, error) {
	switch v.(type) {
	case int8, bool:
		return tagByte, nil
	case int16:
		return tagShort, nil
	case int32, int:
		return tagInt, nil
	case int64:
		return tagLong, nil
	case float32:
		return tagFloat, nil
	case float64:
		return tagDouble, nil
	case []byte:
		return tagByteArray, nil
	case string:
		return tagString, nil
	case []any:
		return tagList, nil
	case map[string]any:
		return tagCompound, nil
	}
	return tagEnd, fmt.Errorf("nbttest: unsupported value %T", v)
}

func writePayload(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case bool:
		if t {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case int8:
		buf.WriteByte(byte(t))
	case int16:
		_ = binary.Write(buf, binary.BigEndian, t)
	case int32:
		_ = binary.Write(buf, binary.BigEndian, t)
	case int:
		_ = binary.Write(buf, binary.BigEndian, int32(t))
	case int64:
		_ = binary.Write(buf, binary.BigEndian, t)
	case float32:
		_ = binary.Write(buf, binary.BigEndian, t)
	case float64:
		_ = binary.Write(buf, binary.BigEndian, t)
	case []byte:
		_ = binary.Write(buf, binary.BigEndian, int32(len(t)))
		buf.Write(t)
	case string:
		writeString(buf, t)
	case []any:
		elem := tagEnd
		if len(t) > 0 {
			tag, err := tagOf(t[0])
			if err != nil {
				return err
			}
			elem = tag
		}
		buf.WriteByte(elem)
		_ = binary.Write(buf, binary.BigEndian, int32(len(t)))
		for _, item := range t {
			if tag, err := tagOf(item); err != nil || tag != elem {
				return fmt.Errorf("nbttest: mixed list element %T", item)
			}
			if err := writePayload(buf, item); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tag, err := tagOf(t[k])
			if err != nil {
				return err
			}
			buf.WriteByte(tag)
			writeString(buf, k)
			if err := writePayload(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte(tagEnd)
	default:
		return fmt.Errorf("nbttest: unsupported value %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
}
