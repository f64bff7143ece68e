package canonicalize

import (
	"strings"
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]any{"c": 3, "a": 1, "b": 2}

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if expected := `{"a":1,"b":2,"c":3}`; string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]any{
		"z": map[string]any{"y": "foo", "x": "bar"},
		"a": 1,
	}

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`; string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{"html": "<b>a & b</b>"}

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if expected := `{"html":"<b>a & b</b>"}`; string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_StructTagsAndNull(t *testing.T) {
	type event struct {
		Zeta     string         `json:"zeta"`
		Alpha    bool           `json:"alpha"`
		Snapshot map[string]any `json:"snapshot"`
	}

	b, err := JCS(event{Zeta: "z", Alpha: true})
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if expected := `{"alpha":true,"snapshot":null,"zeta":"z"}`; string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
	if strings.Contains(string(b), "\n") {
		t.Error("canonical form must be a single line")
	}
}

func TestCanonicalHash_Stability(t *testing.T) {
	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}

	h1, err := CanonicalHash(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(S{A: 1, B: 2})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash mismatch: %s != %s", h1, h2)
	}
}

func TestAddress(t *testing.T) {
	addr := Address([]byte("hello world"))
	if addr != "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("unexpected address %s", addr)
	}
}
