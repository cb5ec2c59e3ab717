package keys

import (
	"bytes"
	"testing"
)

// Property 3: epoch determinism. Given identical k_c and epoch t, the
// four per-epoch subkeys derived twice must agree bit-for-bit.
func TestDeriveIsDeterministic(t *testing.T) {
	longTerm, err := GenerateLongTermKey()
	if err != nil {
		t.Fatalf("GenerateLongTermKey: %v", err)
	}

	a, err := Derive(longTerm, 42)
	if err != nil {
		t.Fatalf("Derive (a): %v", err)
	}
	b, err := Derive(longTerm, 42)
	if err != nil {
		t.Fatalf("Derive (b): %v", err)
	}

	for name, pair := range map[string][2][]byte{
		"Msg":  {a.Msg, b.Msg},
		"Ntf":  {a.Ntf, b.Ntf},
		"Renc": {a.Renc, b.Renc},
		"Auth": {a.Auth, b.Auth},
	} {
		if !bytes.Equal(pair[0], pair[1]) {
			t.Fatalf("%s subkey differs across identical derivations", name)
		}
	}
}

func TestDeriveDiffersAcrossEpochs(t *testing.T) {
	longTerm, err := GenerateLongTermKey()
	if err != nil {
		t.Fatalf("GenerateLongTermKey: %v", err)
	}

	e1, err := Derive(longTerm, 1)
	if err != nil {
		t.Fatalf("Derive(1): %v", err)
	}
	e2, err := Derive(longTerm, 2)
	if err != nil {
		t.Fatalf("Derive(2): %v", err)
	}
	if bytes.Equal(e1.Msg, e2.Msg) {
		t.Fatalf("k_msg must differ across epochs")
	}
}

func TestDeriveRejectsWrongKeySize(t *testing.T) {
	if _, err := Derive(make([]byte, 16), 1); err == nil {
		t.Fatalf("expected error for undersized long-term key")
	}
}
