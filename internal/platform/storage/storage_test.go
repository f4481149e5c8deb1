package storage

import (
	"io"
	"strings"
	"testing"
)

func TestFSStore_PutGet(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}

	key, err := store.Put("quizzes/1/abc.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if key != "quizzes/1/abc.txt" {
		t.Errorf("key = %q, want quizzes/1/abc.txt", key)
	}

	rc, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
}

func TestFSStore_KeyCannotEscapeBase(t *testing.T) {
	store, _ := NewFSStore(t.TempDir())

	key, err := store.Put("../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if key != "etc/passwd" {
		t.Errorf("key = %q, want etc/passwd", key)
	}
}

func TestFSStore_EmptyKey(t *testing.T) {
	store, _ := NewFSStore(t.TempDir())
	if _, err := store.Put("", strings.NewReader("x")); err == nil {
		t.Error("Put() should error for empty key")
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("quiz"))
	b := Checksum([]byte("quiz"))
	c := Checksum([]byte("quiz2"))

	if len(a) != 64 {
		t.Errorf("len(Checksum) = %d, want 64", len(a))
	}
	if a != b {
		t.Error("Checksum should be deterministic")
	}
	if a == c {
		t.Error("different input should give different checksum")
	}
}
