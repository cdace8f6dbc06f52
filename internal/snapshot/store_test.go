package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskStore_Put(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "/snapshots/")
	if err != nil {
		t.Fatal(err)
	}

	url, err := s.Put(context.Background(), "track-t1.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "/snapshots/track-t1.png" {
		t.Errorf("url = %v", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "track-t1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestDiskStore_PutStripsPathParts(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "https://cdn.test/snapshots")
	if err != nil {
		t.Fatal(err)
	}

	url, err := s.Put(context.Background(), "../../etc/track-t1.png", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn.test/snapshots/track-t1.png" {
		t.Errorf("url = %v", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "track-t1.png")); err != nil {
		t.Errorf("file not written inside the root: %v", err)
	}
}

func TestDiskStore_PutRejectsEmptyKey(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), "/snapshots")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(context.Background(), "", strings.NewReader("x")); err == nil {
		t.Error("expected an error for an empty key")
	}
	if _, err := s.Put(context.Background(), "..", strings.NewReader("x")); err == nil {
		t.Error("expected an error for a bare traversal key")
	}
}

func TestDiskStore_OverwriteSameKey(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "/snapshots")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Put(context.Background(), "track-t1.png", strings.NewReader("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(context.Background(), "track-t1.png", strings.NewReader("second")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "track-t1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("stored content = %q", data)
	}
}

func TestNewDiskStore_CreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "snapshots")
	if _, err := NewDiskStore(dir, "/snapshots"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}
