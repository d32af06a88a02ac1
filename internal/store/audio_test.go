package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestAudioStoreRoundTrip(t *testing.T) {
	s, err := NewAudioStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewAudioStore: %v", err)
	}

	data := []byte("pretend this is mp3")
	ref, err := s.Save("m1", "recording.MP3", data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ref != "m1.mp3" {
		t.Errorf("ref = %q, want m1.mp3", ref)
	}

	got, err := s.Load(ref)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("loaded bytes differ from stored bytes")
	}

	if err := s.Delete(ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting again is fine.
	if err := s.Delete(ref); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}

func TestAudioStoreNoExtension(t *testing.T) {
	s, err := NewAudioStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ref, err := s.Save("m2", "upload", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if ref != "m2.bin" {
		t.Errorf("ref = %q, want m2.bin", ref)
	}
}

func TestAudioStoreRejectsPathTraversal(t *testing.T) {
	s, err := NewAudioStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{filepath.Join("..", "escape.mp3"), "/etc/passwd", ""} {
		if _, err := s.Load(ref); err == nil {
			t.Errorf("Load(%q) should fail", ref)
		}
	}
}
