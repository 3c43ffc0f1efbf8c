package types

import "fmt"

// Default live audio parameters.
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultLiveVoice        = "Zephyr"
)

// LiveConfig configures a duplex voice session.
type LiveConfig struct {
	Model            string
	System           string
	Voice            string
	InputSampleRate  int
	OutputSampleRate int
	// InputTranscription and OutputTranscription request live transcripts.
	InputTranscription  bool
	OutputTranscription bool
}

// Blob is a chunk of binary media tagged with its MIME type,
// e.g. "audio/pcm;rate=16000".
type Blob struct {
	MIMEType string
	Data     []byte
}

// LiveEventKind tags a LiveEvent.
type LiveEventKind int

const (
	LiveInputTranscript LiveEventKind = iota
	LiveOutputTranscript
	LiveAudio
	LiveTurnComplete
	LiveInterrupted
	LiveError
	LiveClosed
)

func (k LiveEventKind) String() string {
	switch k {
	case LiveInputTranscript:
		return "input_transcript"
	case LiveOutputTranscript:
		return "output_transcript"
	case LiveAudio:
		return "audio"
	case LiveTurnComplete:
		return "turn_complete"
	case LiveInterrupted:
		return "interrupted"
	case LiveError:
		return "error"
	case LiveClosed:
		return "closed"
	default:
		return fmt.Sprintf("live_event(%d)", int(k))
	}
}

// LiveEvent is one inbound event of a duplex session.
type LiveEvent struct {
	Kind  LiveEventKind
	Text  string
	Audio *Blob
	Err   error
}
