package auditlog

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestCanonicalPayload_KeyOrderIndependent(t *testing.T) {
	a := json.RawMessage(`{"b":1,"a":{"z":true,"y":"x"},"c":[3,2,1]}`)
	b := json.RawMessage(`{"c":[3,2,1],"a":{"y":"x","z":true},"b":1}`)

	ca := CanonicalPayload(a)
	cb := CanonicalPayload(b)
	if !bytes.Equal(ca, cb) {
		t.Fatalf("expected identical canonical bytes, got %s vs %s", ca, cb)
	}
	if string(ca) != `{"a":{"y":"x","z":true},"b":1,"c":[3,2,1]}` {
		t.Fatalf("unexpected canonical form: %s", ca)
	}
}

func TestCanonicalPayload_ArrayOrderPreserved(t *testing.T) {
	got := string(CanonicalPayload(json.RawMessage(`{"ids":[3,1,2]}`)))
	if got != `{"ids":[3,1,2]}` {
		t.Fatalf("array order must be preserved, got %s", got)
	}
}

func TestCanonicalPayload_EmptyAndMalformed(t *testing.T) {
	if got := string(CanonicalPayload(nil)); got != "{}" {
		t.Fatalf("nil payload: got %s", got)
	}
	if got := string(CanonicalPayload(json.RawMessage("  "))); got != "{}" {
		t.Fatalf("blank payload: got %s", got)
	}
	if got := string(CanonicalPayload(json.RawMessage(`{"broken`))); got != "{}" {
		t.Fatalf("malformed payload: got %s", got)
	}
}

func TestCanonicalPayload_NoEscaping(t *testing.T) {
	got := string(CanonicalPayload(json.RawMessage(`{"name":"café","url":"https://a/b?q=<1>"}`)))
	want := `{"name":"café","url":"https://a/b?q=<1>"}`
	if got != want {
		t.Fatalf("slashes and non-ASCII must pass through literally:\n got %s\nwant %s", got, want)
	}
}

func TestCanonicalPayload_NumberTextRoundTrips(t *testing.T) {
	got := string(CanonicalPayload(json.RawMessage(`{"amount":1.10,"count":7}`)))
	if got != `{"amount":1.10,"count":7}` {
		t.Fatalf("numeric text must survive the round trip, got %s", got)
	}
}

func TestCanonicalJSON_Scalars(t *testing.T) {
	cases := map[string]any{
		"null":      nil,
		"true":      true,
		`"s"`:       "s",
		"12":        json.Number("12"),
		`["a","b"]`: []any{"a", "b"},
	}
	for want, in := range cases {
		if got := string(CanonicalJSON(in)); got != want {
			t.Fatalf("CanonicalJSON(%v) = %s, want %s", in, got, want)
		}
	}
}
