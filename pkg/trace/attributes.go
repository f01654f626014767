package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on spans and metrics.
const (
	AttrSessionID = "session.id"
	AttrFile      = "audio.file"

	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioEncoding   = "audio.encoding"
	AttrAudioSamples    = "audio.samples"

	AttrVADEngine    = "vad.engine"
	AttrVADFrames    = "vad.frames"
	AttrSegmentCount = "segment.count"
	AttrSegmentStart = "segment.start"
	AttrSegmentEnd   = "segment.end"
	AttrSegmentKept  = "segment.kept"
)

// SessionAttrs creates attributes for a server session.
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// AudioAttrs describes an input stream.
func AudioAttrs(sampleRate int, encoding string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.String(AttrAudioEncoding, encoding),
	}
}

// SegmentAttrs describes a finalized or discarded segment.
func SegmentAttrs(start, end int, kept bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrSegmentStart, start),
		attribute.Int(AttrSegmentEnd, end),
		attribute.Bool(AttrSegmentKept, kept),
	}
}

// FileAttrs describes an input file.
func FileAttrs(path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrFile, path),
	}
}
