package controlplane

import (
	"strings"
	"testing"
)

func TestRegisterAndNew(t *testing.T) {
	called := false
	Register("test-dialect", func(s Settings) (Client, error) {
		called = true
		return nil, nil
	})

	if _, err := New("test-dialect", Settings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("factory was not invoked")
	}

	found := false
	for _, name := range Available() {
		if name == "test-dialect" {
			found = true
		}
	}
	if !found {
		t.Fatalf("test-dialect missing from Available(): %v", Available())
	}
}

func TestNewUnknownDialect(t *testing.T) {
	_, err := New("no-such-dialect", Settings{})
	if err == nil {
		t.Fatal("expected error for unknown dialect")
	}
	if !strings.Contains(err.Error(), "no-such-dialect") {
		t.Fatalf("error should name the dialect: %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("dup-dialect", func(Settings) (Client, error) { return nil, nil })
	Register("dup-dialect", func(Settings) (Client, error) { return nil, nil })
}
