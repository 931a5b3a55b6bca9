package auditlog

import (
	"bytes"
	"encoding/json"
	"sort"
)

// emptyObject is the canonical form of an absent or unencodable payload.
var emptyObject = json.RawMessage("{}")

// CanonicalJSON renders a decoded JSON value as a deterministic byte string:
// object keys are sorted byte-lexicographically at every nesting level,
// array element order is preserved, and scalars pass through unchanged.
// Forward slashes and non-ASCII text are emitted literally (no HTML or
// unicode escaping), so two structurally equal values always produce
// identical bytes. A nil or unencodable value canonicalizes to "{}".
func CanonicalJSON(v any) []byte {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return append([]byte(nil), emptyObject...)
	}
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.RawMessage:
		decoded, err := DecodeValue(t)
		if err != nil {
			return err
		}
		return writeCanonical(buf, decoded)
	default:
		return writeScalar(buf, v)
	}
}

// writeScalar encodes a single scalar without HTML escaping and without the
// trailing newline the stdlib encoder appends.
func writeScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// DecodeValue parses raw JSON into the generic value tree CanonicalJSON
// walks. Numbers decode as json.Number so their textual form survives the
// round trip. Empty input decodes to an empty object.
func DecodeValue(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// CanonicalPayload normalizes a raw payload to its canonical byte form.
// Absent or malformed payloads normalize to "{}" rather than failing.
func CanonicalPayload(raw json.RawMessage) json.RawMessage {
	v, err := DecodeValue(raw)
	if err != nil {
		return append(json.RawMessage(nil), emptyObject...)
	}
	return json.RawMessage(CanonicalJSON(v))
}
