package canonicalize

import (
	"testing"
)

func TestSortedJSON_KeepsLargeIntegers(t *testing.T) {
	var v map[string]any
	if err := DecodeNumbers([]byte(`{"id":12345678901234567891,"f":0.1,"e":1.0}`), &v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	b, err := SortedJSON(v)
	if err != nil {
		t.Fatalf("SortedJSON failed: %v", err)
	}
	if expected := `{"e":1.0,"f":0.1,"id":12345678901234567891}`; string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestSortedJSON_NoHTMLEscapingNoNewline(t *testing.T) {
	b, err := SortedJSON(map[string]any{"z": "<b>a & b</b>", "a": []int{1}})
	if err != nil {
		t.Fatalf("SortedJSON failed: %v", err)
	}
	if expected := `{"a":[1],"z":"<b>a & b</b>"}`; string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestDecodeNumbers_RejectsTrailingData(t *testing.T) {
	var v any
	if err := DecodeNumbers([]byte(`{} {}`), &v); err == nil {
		t.Error("expected trailing data to be rejected")
	}
}
