package computepb

// Hand-rolled wire codec: this package is not run through protoc — there is
// no protoc-gen-go available in this environment — but every message still
// round-trips through real protobuf wire encoding via
// google.golang.org/protobuf/encoding/protowire, the same low-level
// primitives protoc-gen-go's output is built on. Each message is a flat
// struct whose fields carry a `wire:"<field number>,<kind>"` tag; marshal
// and unmarshal are driven generically off those tags by reflection rather
// than per-message generated code, trading a little of protoc-gen-go's
// per-field inlining for a single, auditable codec path.

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

type wireField struct {
	index int
	num   protowire.Number
	kind  string
}

var wireFieldCache sync.Map // reflect.Type -> []wireField

func fieldsOf(t reflect.Type) []wireField {
	if cached, ok := wireFieldCache.Load(t); ok {
		return cached.([]wireField)
	}
	var fields []wireField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("wire")
		if tag == "" {
			continue
		}
		parts := strings.SplitN(tag, ",", 2)
		num, err := strconv.Atoi(parts[0])
		if err != nil {
			panic(fmt.Sprintf("computepb: invalid wire tag on %s.%s: %q", t.Name(), f.Name, tag))
		}
		fields = append(fields, wireField{index: i, num: protowire.Number(num), kind: parts[1]})
	}
	wireFieldCache.Store(t, fields)
	return fields
}

// Marshal encodes msg (a pointer to a message struct) as protobuf wire
// bytes.
func Marshal(msg interface{}) ([]byte, error) {
	rv := reflect.ValueOf(msg).Elem()
	var buf []byte
	for _, wf := range fieldsOf(rv.Type()) {
		fv := rv.Field(wf.index)
		switch wf.kind {
		case "bytes":
			b := fv.Bytes()
			if len(b) == 0 {
				continue
			}
			buf = protowire.AppendTag(buf, wf.num, protowire.BytesType)
			buf = protowire.AppendBytes(buf, b)
		case "string":
			s := fv.String()
			if s == "" {
				continue
			}
			buf = protowire.AppendTag(buf, wf.num, protowire.BytesType)
			buf = protowire.AppendBytes(buf, []byte(s))
		case "bool":
			if !fv.Bool() {
				continue
			}
			buf = protowire.AppendTag(buf, wf.num, protowire.VarintType)
			buf = protowire.AppendVarint(buf, 1)
		case "varint":
			n := signedOrUnsigned(fv)
			if n == 0 {
				continue
			}
			buf = protowire.AppendTag(buf, wf.num, protowire.VarintType)
			buf = protowire.AppendVarint(buf, n)
		case "fixed64":
			f64 := fv.Float()
			if f64 == 0 {
				continue
			}
			buf = protowire.AppendTag(buf, wf.num, protowire.Fixed64Type)
			buf = protowire.AppendFixed64(buf, math.Float64bits(f64))
		case "repeated_bytes":
			slice := fv.Interface().([][]byte)
			for _, b := range slice {
				buf = protowire.AppendTag(buf, wf.num, protowire.BytesType)
				buf = protowire.AppendBytes(buf, b)
			}
		case "repeated_varint32":
			slice := fv.Interface().([]uint32)
			for _, n := range slice {
				buf = protowire.AppendTag(buf, wf.num, protowire.VarintType)
				buf = protowire.AppendVarint(buf, uint64(n))
			}
		case "repeated_bool":
			slice := fv.Interface().([]bool)
			for _, b := range slice {
				buf = protowire.AppendTag(buf, wf.num, protowire.VarintType)
				n := uint64(0)
				if b {
					n = 1
				}
				buf = protowire.AppendVarint(buf, n)
			}
		default:
			panic(fmt.Sprintf("computepb: unknown wire kind %q", wf.kind))
		}
	}
	return buf, nil
}

// Unmarshal decodes protobuf wire bytes into msg (a pointer to a message
// struct), overwriting its fields.
func Unmarshal(data []byte, msg interface{}) error {
	rv := reflect.ValueOf(msg).Elem()
	byNum := make(map[protowire.Number]wireField)
	for _, wf := range fieldsOf(rv.Type()) {
		byNum[wf.num] = wf
	}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		wf, known := byNum[num]
		if !known {
			skip := protowire.ConsumeFieldValue(num, typ, data)
			if skip < 0 {
				return protowire.ParseError(skip)
			}
			data = data[skip:]
			continue
		}

		fv := rv.Field(wf.index)
		switch wf.kind {
		case "bytes":
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			cp := append([]byte(nil), b...)
			fv.SetBytes(cp)
			data = data[m:]
		case "string":
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fv.SetString(string(b))
			data = data[m:]
		case "bool":
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fv.SetBool(v != 0)
			data = data[m:]
		case "varint":
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			setSignedOrUnsigned(fv, v)
			data = data[m:]
		case "fixed64":
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fv.SetFloat(math.Float64frombits(v))
			data = data[m:]
		case "repeated_bytes":
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			cp := append([]byte(nil), b...)
			fv.Set(reflect.Append(fv, reflect.ValueOf(cp)))
			data = data[m:]
		case "repeated_varint32":
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fv.Set(reflect.Append(fv, reflect.ValueOf(uint32(v))))
			data = data[m:]
		case "repeated_bool":
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fv.Set(reflect.Append(fv, reflect.ValueOf(v != 0)))
			data = data[m:]
		default:
			panic(fmt.Sprintf("computepb: unknown wire kind %q", wf.kind))
		}
	}
	return nil
}

func signedOrUnsigned(fv reflect.Value) uint64 {
	switch fv.Kind() {
	case reflect.Int32, reflect.Int64, reflect.Int:
		return uint64(fv.Int())
	case reflect.Uint32, reflect.Uint64, reflect.Uint:
		return fv.Uint()
	default:
		panic(fmt.Sprintf("computepb: varint field has unsupported kind %s", fv.Kind()))
	}
}

func setSignedOrUnsigned(fv reflect.Value, v uint64) {
	switch fv.Kind() {
	case reflect.Int32, reflect.Int64, reflect.Int:
		fv.SetInt(int64(v))
	case reflect.Uint32, reflect.Uint64, reflect.Uint:
		fv.SetUint(v)
	default:
		panic(fmt.Sprintf("computepb: varint field has unsupported kind %s", fv.Kind()))
	}
}
