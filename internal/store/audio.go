package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// AudioStore keeps uploaded meeting audio on the local filesystem. The
// audio_ref recorded on the meeting row is the stored filename, not a full
// path, so the data directory can move without rewriting rows.
type AudioStore struct {
	dir string
}

func NewAudioStore(dir string) (*AudioStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("audio directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory %s: %w", dir, err)
	}
	return &AudioStore{dir: dir}, nil
}

// Save writes the audio bytes for a meeting and returns the ref to record.
// The stored name keeps the upload's extension so the MIME type survives.
func (s *AudioStore) Save(meetingID, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	ref := meetingID + ext

	path := filepath.Join(s.dir, ref)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	log.Info().Str("meeting_id", meetingID).Str("ref", ref).Int("bytes", len(data)).Msg("Audio stored")
	return ref, nil
}

// Load reads the audio bytes for a previously stored ref.
func (s *AudioStore) Load(ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("meeting has no audio attached")
	}
	// Refs are bare filenames; reject anything trying to escape the dir.
	if ref != filepath.Base(ref) {
		return nil, fmt.Errorf("invalid audio ref %q", ref)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file %s is missing: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", ref, err)
	}
	return data, nil
}

// Delete removes the stored audio for a ref. Missing files are fine.
func (s *AudioStore) Delete(ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete audio file %s: %w", ref, err)
	}
	return nil
}

// MimeType maps a stored ref's extension to the MIME type sent to the
// transcription provider.
func MimeType(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
