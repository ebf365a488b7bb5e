package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, 20)
	addr, err := NewAddress(raw)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AccountPrefix+"1") {
		t.Fatalf("encoded = %q, want %q prefix", encoded, AccountPrefix)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes mismatch: %x", decoded.Bytes())
	}
}

func TestNewAddressValidatesLength(t *testing.T) {
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatal("19-byte address accepted")
	}
	if _, err := NewAddress(nil); err == nil {
		t.Fatal("nil address accepted")
	}
}

func TestNewAddressCopiesInput(t *testing.T) {
	raw := bytes.Repeat([]byte{0x01}, 20)
	addr, err := NewAddress(raw)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	raw[0] = 0xff
	if addr.Bytes()[0] != 0x01 {
		t.Fatal("address aliases caller's slice")
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"); err == nil {
		t.Fatal("foreign prefix accepted")
	}
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestIsZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatal("empty address not zero")
	}
	if !MustNewAddress(make([]byte, 20)).IsZero() {
		t.Fatal("all-zero address not zero")
	}
	if MustNewAddress(bytes.Repeat([]byte{0x01}, 20)).IsZero() {
		t.Fatal("non-zero address reported zero")
	}
}
