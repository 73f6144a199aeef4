package pagination

import (
	"errors"
	"testing"
)

func TestEncodeTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2026-03-14T09:30:00Z", "ord_1"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cursor.StartAfter) != 2 {
		t.Fatalf("StartAfter length = %d, want 2", len(cursor.StartAfter))
	}
	if got, ok := cursor.StringAt(1); !ok || got != "ord_1" {
		t.Fatalf("StringAt(1) = %q, %v", got, ok)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty", token)
	}
}

func TestDecodeTokenEmptyString(t *testing.T) {
	cursor, err := DecodeToken("  ")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cursor.StartAfter) != 0 {
		t.Fatalf("expected empty cursor, got %v", cursor.StartAfter)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%not-base64%%%", "bm90LWpzb24"} {
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("DecodeToken(%q) error = %v, want ErrInvalidPageToken", token, err)
		}
	}
}

func TestStringAtOutOfRange(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"only"}}
	if _, ok := cursor.StringAt(1); ok {
		t.Fatal("expected out-of-range lookup to fail")
	}
	if _, ok := cursor.StringAt(-1); ok {
		t.Fatal("expected negative index lookup to fail")
	}
}
