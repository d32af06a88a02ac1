package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/ai"
	"github.com/meetgraph/internal/store"
	"github.com/meetgraph/pkg/models"
)

// InaudibleToken is the literal the transcription prompt instructs the model
// to emit when no speech is discernible.
const InaudibleToken = "[inaudible]"

// NoSpeechText is the sentinel segment text stored when the transcript comes
// back empty or inaudible, so the user sees an explanation instead of an
// empty transcript view.
const NoSpeechText = "[No speech detected in this recording]"

var speakerLineRe = regexp.MustCompile(`^Speaker\s*(\d+)\s*:\s*`)

// TranscriptionStage turns stored meeting audio into transcript segments.
type TranscriptionStage struct {
	meetings    MeetingStore
	transcripts TranscriptStore
	audio       AudioStore
	transcriber ai.Transcriber
	log         zerolog.Logger
}

func NewTranscriptionStage(meetings MeetingStore, transcripts TranscriptStore, audio AudioStore, transcriber ai.Transcriber, log zerolog.Logger) *TranscriptionStage {
	return &TranscriptionStage{
		meetings:    meetings,
		transcripts: transcripts,
		audio:       audio,
		transcriber: transcriber,
		log:         log.With().Str("stage", "transcription").Logger(),
	}
}

// TranscriptionResult reports what a successful run produced.
type TranscriptionResult struct {
	Segments int      `json:"segments"`
	Steps    []string `json:"steps"`
}

// Run executes the stage for one meeting. On success the meeting advances to
// analyzing; on failure it is marked failed (best-effort) and the original
// error is returned alongside the trace.
func (s *TranscriptionStage) Run(ctx context.Context, meetingID string) (*TranscriptionResult, []string, error) {
	trace := &Trace{}
	segments, err := s.run(ctx, meetingID, trace)
	if err != nil {
		s.markFailed(ctx, meetingID, trace)
		return nil, trace.Steps(), err
	}
	return &TranscriptionResult{Segments: segments, Steps: trace.Steps()}, trace.Steps(), nil
}

func (s *TranscriptionStage) run(ctx context.Context, meetingID string, trace *Trace) (int, error) {
	trace.Add("Fetching meeting %s", meetingID)
	meeting, err := s.meetings.Get(ctx, meetingID)
	if err != nil {
		return 0, err
	}

	if meeting.Status != models.StatusProcessing {
		if _, err := s.meetings.TransitionStatus(ctx, meetingID,
			[]models.MeetingStatus{models.StatusRecording, models.StatusFailed},
			models.StatusProcessing); err != nil {
			return 0, err
		}
	}
	trace.Add("Meeting is processing")

	if meeting.AudioRef == "" {
		return 0, fmt.Errorf("%w: meeting has no audio attached", ErrInvalidState)
	}

	trace.Add("Loading audio %s", meeting.AudioRef)
	audio, err := s.audio.Load(meeting.AudioRef)
	if err != nil {
		return 0, err
	}
	trace.Add("Loaded %d audio bytes", len(audio))

	languageHint := LanguageName(meeting.Language)
	trace.Add("Transcribing (language hint: %s)", languageHint)
	text, err := s.transcriber.Transcribe(ctx, audio, store.MimeType(meeting.AudioRef), languageHint)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	segments := ParseTranscript(text, meeting.Language)
	trace.Add("Parsed %d segments", len(segments))

	if err := s.transcripts.ReplaceForMeeting(ctx, meetingID, segments); err != nil {
		return 0, err
	}
	trace.Add("Stored %d segments", len(segments))

	if _, err := s.meetings.TransitionStatus(ctx, meetingID,
		[]models.MeetingStatus{models.StatusProcessing}, models.StatusAnalyzing); err != nil {
		return 0, err
	}
	trace.Add("Meeting advanced to analyzing")

	return len(segments), nil
}

// markFailed is best-effort: a secondary failure while writing the failure
// status must not mask the original error.
func (s *TranscriptionStage) markFailed(ctx context.Context, meetingID string, trace *Trace) {
	_, err := s.meetings.TransitionStatus(ctx, meetingID,
		[]models.MeetingStatus{models.StatusProcessing}, models.StatusFailed)
	if err != nil {
		s.log.Warn().Err(err).Str("meeting_id", meetingID).Msg("Could not mark meeting failed")
		return
	}
	trace.Add("Meeting marked failed")
}

// ParseTranscript splits raw transcript text into segments, one per non-empty
// line. Lines prefixed with a speaker marker keep a normalized "Speaker N"
// label; all other lines have no speaker. An empty or inaudible transcript
// yields a single sentinel segment.
func ParseTranscript(text, language string) []models.TranscriptSegment {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == InaudibleToken {
		return []models.TranscriptSegment{{Text: NoSpeechText, Language: language}}
	}

	var segments []models.TranscriptSegment
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		seg := models.TranscriptSegment{Text: line, Language: language}
		if match := speakerLineRe.FindStringSubmatch(line); match != nil {
			speaker := "Speaker " + match[1]
			seg.Speaker = &speaker
			seg.Text = strings.TrimSpace(line[len(match[0]):])
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return []models.TranscriptSegment{{Text: NoSpeechText, Language: language}}
	}
	return segments
}

var languageNames = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pt": "Portuguese",
	"ru": "Russian",
	"tr": "Turkish",
	"zh": "Chinese",
}

// LanguageName maps an ISO language code to the human-readable name used in
// transcription prompts. Unknown codes pass through unchanged.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	if code == "" {
		return "English"
	}
	return code
}
