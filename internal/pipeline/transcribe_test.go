package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/meetgraph/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestParseTranscriptSpeakerLines(t *testing.T) {
	got := ParseTranscript("Speaker 1: Hello\nHello back", "en")

	want := []models.TranscriptSegment{
		{Speaker: strPtr("Speaker 1"), Text: "Hello", Language: "en"},
		{Speaker: nil, Text: "Hello back", Language: "en"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected segments (-want +got):\n%s", diff)
	}
}

func TestParseTranscriptNormalizesSpeakerLabel(t *testing.T) {
	got := ParseTranscript("Speaker   12 :   hi there", "en")
	if len(got) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(got))
	}
	if got[0].Speaker == nil || *got[0].Speaker != "Speaker 12" {
		t.Errorf("expected speaker label 'Speaker 12', got %v", got[0].Speaker)
	}
	if got[0].Text != "hi there" {
		t.Errorf("expected text 'hi there', got %q", got[0].Text)
	}
}

func TestParseTranscriptSkipsBlankLines(t *testing.T) {
	got := ParseTranscript("Speaker 1: one\n\n\nSpeaker 2: two\n", "en")
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
}

func TestParseTranscriptInaudible(t *testing.T) {
	for _, input := range []string{"", "   ", "[inaudible]", "  [inaudible]\n"} {
		got := ParseTranscript(input, "en")
		if len(got) != 1 {
			t.Fatalf("ParseTranscript(%q): expected 1 sentinel segment, got %d", input, len(got))
		}
		if got[0].Text != NoSpeechText {
			t.Errorf("ParseTranscript(%q): expected sentinel text, got %q", input, got[0].Text)
		}
		if got[0].Speaker != nil {
			t.Errorf("ParseTranscript(%q): sentinel segment must have no speaker", input)
		}
	}
}

func TestLanguageName(t *testing.T) {
	cases := map[string]string{
		"en": "English",
		"ES": "Spanish",
		"ja": "Japanese",
		"":   "English",
		"xx": "xx",
	}
	for code, want := range cases {
		if got := LanguageName(code); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}
}

func newTranscriptionFixture(meeting *models.Meeting) (*TranscriptionStage, *fakeMeetings, *fakeTranscripts, *fakeAudio, *fakeTranscriber) {
	meetings := newFakeMeetings(meeting)
	transcripts := newFakeTranscripts()
	audio := newFakeAudio()
	transcriber := &fakeTranscriber{text: "Speaker 1: Hello"}
	stage := NewTranscriptionStage(meetings, transcripts, audio, transcriber, zerolog.Nop())
	return stage, meetings, transcripts, audio, transcriber
}

func TestTranscriptionStageSuccess(t *testing.T) {
	meeting := &models.Meeting{ID: "m1", UserID: "u1", Title: "Standup", Language: "en", Status: models.StatusRecording, AudioRef: "m1.mp3"}
	stage, meetings, transcripts, audio, transcriber := newTranscriptionFixture(meeting)
	audio.files["m1.mp3"] = []byte("fake audio")
	transcriber.text = "Speaker 1: Hello\nSpeaker 2: Hi"

	result, _, err := stage.Run(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Segments != 2 {
		t.Errorf("expected 2 segments, got %d", result.Segments)
	}
	if len(transcripts.segments["m1"]) != 2 {
		t.Errorf("expected 2 stored segments, got %d", len(transcripts.segments["m1"]))
	}
	if meetings.meetings["m1"].Status != models.StatusAnalyzing {
		t.Errorf("expected status analyzing, got %s", meetings.meetings["m1"].Status)
	}
	if transcriber.gotLanguage != "English" {
		t.Errorf("expected language hint English, got %q", transcriber.gotLanguage)
	}
	if len(result.Steps) == 0 {
		t.Error("expected a non-empty diagnostic trace")
	}
}

func TestTranscriptionStageNoAudio(t *testing.T) {
	meeting := &models.Meeting{ID: "m1", UserID: "u1", Status: models.StatusRecording}
	stage, meetings, transcripts, _, _ := newTranscriptionFixture(meeting)

	_, steps, err := stage.Run(context.Background(), "m1")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if meetings.meetings["m1"].Status != models.StatusFailed {
		t.Errorf("expected status failed, got %s", meetings.meetings["m1"].Status)
	}
	if len(transcripts.segments["m1"]) != 0 {
		t.Error("no segments should be written on failure")
	}
	if len(steps) == 0 {
		t.Error("expected a diagnostic trace even on failure")
	}
}

func TestTranscriptionStageMeetingNotFound(t *testing.T) {
	stage, _, _, _, _ := newTranscriptionFixture(&models.Meeting{ID: "other", Status: models.StatusRecording})

	_, _, err := stage.Run(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTranscriptionStageUpstreamFailure(t *testing.T) {
	meeting := &models.Meeting{ID: "m1", UserID: "u1", Status: models.StatusProcessing, AudioRef: "m1.wav"}
	stage, meetings, _, audio, transcriber := newTranscriptionFixture(meeting)
	audio.files["m1.wav"] = []byte("x")
	transcriber.err = errors.New("rate limited (429)")

	_, _, err := stage.Run(context.Background(), "m1")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if meetings.meetings["m1"].Status != models.StatusFailed {
		t.Errorf("expected status failed, got %s", meetings.meetings["m1"].Status)
	}
}

func TestTranscriptionStageRetryFromFailed(t *testing.T) {
	meeting := &models.Meeting{ID: "m1", UserID: "u1", Status: models.StatusFailed, AudioRef: "m1.mp3"}
	stage, meetings, _, audio, _ := newTranscriptionFixture(meeting)
	audio.files["m1.mp3"] = []byte("fake audio")

	_, _, err := stage.Run(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meetings.meetings["m1"].Status != models.StatusAnalyzing {
		t.Errorf("expected status analyzing after retry, got %s", meetings.meetings["m1"].Status)
	}
}

func TestTranscriptionStageReplacesOldSegments(t *testing.T) {
	meeting := &models.Meeting{ID: "m1", UserID: "u1", Status: models.StatusFailed, AudioRef: "m1.mp3"}
	stage, _, transcripts, audio, transcriber := newTranscriptionFixture(meeting)
	audio.files["m1.mp3"] = []byte("fake audio")
	transcripts.segments["m1"] = []models.TranscriptSegment{{ID: "stale", Text: "old line"}}
	transcriber.text = "Speaker 1: fresh line"

	result, _, err := stage.Run(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Segments != 1 {
		t.Fatalf("expected 1 segment, got %d", result.Segments)
	}
	stored := transcripts.segments["m1"]
	if len(stored) != 1 || stored[0].Text != "fresh line" {
		t.Errorf("expected old segments to be replaced, got %+v", stored)
	}
}
