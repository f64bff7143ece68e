package canonicalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{"num":123.456,"bool":true,"null":null}`))
	f.Add([]byte(`{"unicode":"こんにちは","escape":"line1\nline2"}`))
	f.Add([]byte(`{}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
		}

		b1, err := JCS(v)
		if err != nil {
			return
		}
		b2, err := JCS(v)
		if err != nil {
			t.Fatal("JCS returned error on second call but not first")
		}
		if !bytes.Equal(b1, b2) {
			t.Fatalf("non-deterministic output: %s vs %s", b1, b2)
		}
		if bytes.ContainsRune(b1, '\n') {
			t.Fatalf("canonical output contains a raw newline: %s", b1)
		}
	})
}
