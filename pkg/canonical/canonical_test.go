package canonical_test

import (
	"strings"
	"testing"

	"github.com/aegisproof/aegis/pkg/canonical"
)

func TestMarshalSortsKeys(t *testing.T) {
	out, err := canonical.Marshal(map[string]any{
		"zulu":  1,
		"alpha": 2,
		"mike":  3,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"alpha":2,"mike":3,"zulu":1}`
	if string(out) != want {
		t.Errorf("canonical form: got %s, want %s", out, want)
	}
}

func TestMarshalNested(t *testing.T) {
	out, err := canonical.Marshal(map[string]any{
		"outer": map[string]any{"b": 2, "a": 1},
		"list":  []any{"x", "y"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"list":["x","y"],"outer":{"a":1,"b":2}}`
	if string(out) != want {
		t.Errorf("canonical form: got %s, want %s", out, want)
	}
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	out, err := canonical.Marshal(map[string]any{"q": "a<b&c>d"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if strings.Contains(string(out), `<`) {
		t.Errorf("html-escaped output: %s", out)
	}
}

func TestHashDeterministicAcrossKeyOrder(t *testing.T) {
	type bundle struct {
		ClaimID string `json:"claim_id"`
		Verdict string `json:"verdict"`
	}

	a, err := canonical.Hash(bundle{ClaimID: "c1", Verdict: "verified"})
	if err != nil {
		t.Fatalf("hash struct: %v", err)
	}
	b, err := canonical.Hash(map[string]any{"verdict": "verified", "claim_id": "c1"})
	if err != nil {
		t.Fatalf("hash map: %v", err)
	}

	if a != b {
		t.Errorf("equivalent documents hash differently: %s vs %s", a, b)
	}
}

func TestHashBytesKnownVector(t *testing.T) {
	// sha256("")
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := canonical.HashBytes(nil); got != want {
		t.Errorf("empty hash: got %s, want %s", got, want)
	}

	if got := canonical.HashBytes([]byte("abc")); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected digest for abc: %s", got)
	}
}

func TestGenesisHashShape(t *testing.T) {
	if len(canonical.GenesisHash) != 64 {
		t.Fatalf("genesis hash length: got %d, want 64", len(canonical.GenesisHash))
	}
	if strings.Trim(canonical.GenesisHash, "0") != "" {
		t.Errorf("genesis hash must be all zeros: %s", canonical.GenesisHash)
	}
}

func TestMarshalRejectsUnencodable(t *testing.T) {
	if _, err := canonical.Marshal(map[string]any{"fn": func() {}}); err == nil {
		t.Error("expected error for unencodable value")
	}
}
