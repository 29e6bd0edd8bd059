package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"
)

func TestFileKV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() error: %v", err)
	}
	ctx := context.Background()

	if err := kv.Set(ctx, map[string]json.RawMessage{
		"alpha": json.RawMessage(`{"n":1}`),
		"beta":  json.RawMessage(`"two"`),
	}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	v, ok, err := kv.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(v) != `{"n":1}` {
		t.Errorf("Get() = %s, want {\"n\":1}", v)
	}

	_, ok, err = kv.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Error("Get() ok = true for missing key")
	}
}

func TestFileKV_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	ctx := context.Background()

	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() error: %v", err)
	}
	if err := kv.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`1`)}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	// A new instance simulates a process restart.
	reopened, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() after restart error: %v", err)
	}
	v, ok, err := reopened.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || string(v) != "1" {
		t.Errorf("value did not survive reopen: ok=%v v=%s", ok, v)
	}
}

func TestFileKV_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	kv, err := NewFileKV(path)
	if err != nil {
		t.Fatalf("NewFileKV() error: %v", err)
	}
	ctx := context.Background()

	if err := kv.Set(ctx, map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`2`),
	}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := kv.Remove(ctx, "a", "never-existed"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("Keys() = %v, want [b]", keys)
	}
}

func TestMemKV_Keys(t *testing.T) {
	kv := NewMemKV()
	ctx := context.Background()

	if err := kv.Set(ctx, map[string]json.RawMessage{
		"x": json.RawMessage(`1`),
		"y": json.RawMessage(`2`),
	}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Errorf("Keys() = %v, want [x y]", keys)
	}
}
