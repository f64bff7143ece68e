package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SortedJSON renders v as compact JSON on one line with map keys sorted and
// without HTML escaping. Unlike JCS, numbers are written exactly as encoding/json
// sees them, so json.Number values decoded with UseNumber survive byte-for-byte
// and integers beyond 2^53 are not rounded.
//
// Struct fields are emitted in declaration order; types serialized through
// SortedJSON declare their fields in key order.
func SortedJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("sorted json: marshal failed: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// DecodeNumbers unmarshals data into v, keeping numbers in untyped values as
// json.Number.
func DecodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after top-level value")
	}
	return nil
}
