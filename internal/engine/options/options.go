package options

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const (
	KeyURL        = "url"
	KeyHTML       = "html"
	KeyFormat     = "format"
	KeyWebhookURL = "webhook_url"

	DefaultFormat = "png"
)

// Options is an ordered set of render options. Keys are case-sensitive and
// keep the position they were first set at; setting an existing key replaces
// its value in place.
//
// Supported values are strings, booleans, integers, floats, json.Number and
// lists of those scalars (lists expand to repeated key=value pairs).
type Options struct {
	keys   []string
	values map[string]any
}

func New() *Options {
	return &Options{values: make(map[string]any)}
}

// Set stores value under key and returns the receiver so calls can be chained.
func (o *Options) Set(key string, value any) *Options {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
	return o
}

func (o *Options) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

func (o *Options) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

func (o *Options) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func (o *Options) Clone() *Options {
	c := New()
	if o == nil {
		return c
	}
	for _, k := range o.keys {
		v := o.values[k]
		switch list := v.(type) {
		case []string:
			v = append([]string(nil), list...)
		case []any:
			v = append([]any(nil), list...)
		}
		c.Set(k, v)
	}
	return c
}

// MarshalJSON writes the options as a JSON object in insertion order.
func (o *Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if o != nil {
		for i, k := range o.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(o.values[k])
			if err != nil {
				return nil, fmt.Errorf("option %q: %w", k, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order of the document.
// Nested objects are rejected; arrays may only hold scalars.
func (o *Options) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("options: expected a JSON object")
	}

	parsed := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		value, err := readValue(dec, key)
		if err != nil {
			return err
		}
		parsed.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("options: unexpected data after object")
	}

	*o = *parsed
	return nil
}

// Parse decodes a JSON object into Options.
func Parse(data []byte) (*Options, error) {
	o := New()
	if err := o.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return o, nil
}

func readValue(dec *json.Decoder, key string) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, isDelim := tok.(json.Delim)
	if !isDelim {
		if tok == nil {
			return nil, &UnsupportedValueError{Key: key, Value: nil}
		}
		return tok, nil
	}
	if delim != '[' {
		return nil, &UnsupportedValueError{Key: key, Value: "object"}
	}

	list := []any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if _, nested := tok.(json.Delim); nested || tok == nil {
			return nil, &UnsupportedValueError{Key: key, Value: tok}
		}
		list = append(list, tok)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return list, nil
}
