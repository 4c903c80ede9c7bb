package options

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates the render target and returns a copy of opts with the
// url trimmed and scheme-defaulted and format set (png when absent). Key
// order is preserved; a defaulted format is appended last.
func Normalize(opts *Options) (*Options, error) {
	if !opts.Has(KeyURL) && !opts.Has(KeyHTML) {
		return nil, &MissingTargetError{}
	}

	normalized := opts.Clone()

	if raw, ok := normalized.Get(KeyURL); ok {
		s, ok := raw.(string)
		if !ok {
			return nil, &UnsupportedValueError{Key: KeyURL, Value: raw}
		}
		target, err := NormalizeURL(s)
		if err != nil {
			return nil, err
		}
		normalized.Set(KeyURL, target)
	}

	if !normalized.Has(KeyFormat) {
		normalized.Set(KeyFormat, DefaultFormat)
	}
	return normalized, nil
}

// Encode produces the canonical query string for opts together with the
// output format. The same Options always yield the same string: pairs are
// written in insertion order and list values repeat the key once per element.
func Encode(opts *Options) (string, string, error) {
	normalized, err := Normalize(opts)
	if err != nil {
		return "", "", err
	}

	format, err := Format(normalized)
	if err != nil {
		return "", "", err
	}

	query, err := Query(normalized)
	if err != nil {
		return "", "", err
	}
	return query, format, nil
}

// Format returns the format option as a string.
func Format(opts *Options) (string, error) {
	raw, ok := opts.Get(KeyFormat)
	if !ok {
		return DefaultFormat, nil
	}
	values, err := stringValues(KeyFormat, raw)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", &UnsupportedValueError{Key: KeyFormat, Value: raw}
	}
	return values[0], nil
}

// Query percent-encodes opts without any normalization.
func Query(opts *Options) (string, error) {
	var b strings.Builder
	for _, key := range opts.Keys() {
		raw, _ := opts.Get(key)
		values, err := stringValues(key, raw)
		if err != nil {
			return "", err
		}
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String(), nil
}

func stringValues(key string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := scalarString(item)
			if !ok {
				return nil, &UnsupportedValueError{Key: key, Value: item}
			}
			out = append(out, s)
		}
		return out, nil
	}

	s, ok := scalarString(raw)
	if !ok {
		return nil, &UnsupportedValueError{Key: key, Value: raw}
	}
	return []string{s}, nil
}

func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		// Lowercase is what the render API parses; "True" is not a boolean to it.
		return strconv.FormatBool(v), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
