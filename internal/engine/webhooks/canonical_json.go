package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
)

// CompactJSON re-serializes a JSON document the way the render service does
// before signing it: no whitespace, "," and ":" separators, object keys in
// document order (a repeated key keeps its first position and its last
// value), non-ASCII escaped as lowercase \uXXXX, integers in plain decimal and
// floats in shortest round-trip form with an exponent only below 1e-4 or from
// 1e16 up.
//
// Strings are decoded before they are re-escaped, so a lone surrogate escape
// such as "\ud800" or a byte sequence that is not valid UTF-8 comes out as
// "\ufffd". A payload carrying either will not match a signature computed over
// the original escape.
func CompactJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var buf bytes.Buffer
	if err := writeValue(dec, &buf); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("webhooks: unexpected data after JSON payload")
	}
	return buf.Bytes(), nil
}

func writeValue(dec *json.Decoder, buf *bytes.Buffer) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return writeObject(dec, buf)
		case '[':
			return writeArray(dec, buf)
		}
		return fmt.Errorf("webhooks: unexpected delimiter %q", v)
	case string:
		writeString(buf, v)
	case json.Number:
		s, err := formatNumber(v)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("webhooks: unexpected token %T", tok)
	}
	return nil
}

func writeObject(dec *json.Decoder, buf *bytes.Buffer) error {
	var (
		keys   []string
		values [][]byte
		index  = map[string]int{}
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("webhooks: unexpected object key %v", tok)
		}

		var value bytes.Buffer
		if err := writeValue(dec, &value); err != nil {
			return err
		}

		if i, seen := index[key]; seen {
			values[i] = value.Bytes()
			continue
		}
		index[key] = len(keys)
		keys = append(keys, key)
		values = append(values, value.Bytes())
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, key)
		buf.WriteByte(':')
		buf.Write(values[i])
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(dec *json.Decoder, buf *bytes.Buffer) error {
	buf.WriteByte('[')
	for i := 0; dec.More(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(dec, buf); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	buf.WriteByte(']')
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteByte(byte(r))
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeUnicodeEscape(buf, hi)
				writeUnicodeEscape(buf, lo)
			default:
				writeUnicodeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}

func formatNumber(n json.Number) (string, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return "", fmt.Errorf("webhooks: invalid integer %q", s)
		}
		return i.String(), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || numErr.Err != strconv.ErrRange {
			return "", fmt.Errorf("webhooks: invalid number %q: %w", s, err)
		}
	}
	return formatFloat(f), nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}

	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}
