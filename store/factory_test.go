package store

import "testing"

func TestNewStoreKinds(t *testing.T) {
	for _, kind := range []string{"", "memory"} {
		s, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("kind %q: %v", kind, err)
		}
		if _, ok := s.(*MemoryStore); !ok {
			t.Fatalf("kind %q: got %T", kind, s)
		}
		if err := CloseIfSupported(s); err != nil {
			t.Fatalf("close memory: %v", err)
		}
	}
	s, err := NewStore("sqlite", "x.db")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("sqlite: got %T", s)
	}
	if err := CloseIfSupported(s); err != nil {
		t.Fatalf("close unopened sqlite: %v", err)
	}
	if _, err := NewStore("postgres", ""); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
