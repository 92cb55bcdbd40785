package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenKnownDrivers(t *testing.T) {
	for _, driver := range contractDrivers() {
		t.Run(driver, func(t *testing.T) {
			store, err := Open(driver, Config{Path: filepath.Join(t.TempDir(), "chat.db")})
			if err != nil {
				t.Fatalf("Open(%q) failed: %v", driver, err)
			}
			defer store.Close()

			if _, err := store.CreateConversation(context.Background(), "conv-1", "t", nil); err != nil {
				t.Errorf("store from factory not usable: %v", err)
			}
		})
	}
}

func TestOpenIsCaseInsensitive(t *testing.T) {
	store, err := Open("SQLite", Config{Path: filepath.Join(t.TempDir(), "chat.db")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("mongodb", Config{})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestRegisterCustomDriver(t *testing.T) {
	called := false
	Register("fake", func(cfg Config) (Store, error) {
		called = true
		return OpenSqliteInMemory()
	})

	store, err := Open("fake", Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()
	if !called {
		t.Error("registered constructor was not invoked")
	}

	found := false
	for _, name := range Drivers() {
		if name == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'fake' in Drivers(), got %v", Drivers())
	}
}
