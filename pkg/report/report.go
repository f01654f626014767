// Package report renders segmentation results for people and for
// regression snapshots.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/realtime-ai/vadseg/pkg/segment"
)

// Entry is the outcome for one input.
type Entry struct {
	File   string
	Result *segment.Result
	Err    error
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	speechColor = color.New(color.FgGreen)
	dimColor    = color.New(color.Faint)
	errColor    = color.New(color.FgRed)
)

// WriteJSON writes one result as indented JSON.
func WriteJSON(w io.Writer, res *segment.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteTable writes a coloured, human-readable summary of e.
func WriteTable(w io.Writer, e Entry) error {
	if e.Err != nil {
		_, err := errColor.Fprintf(w, "%s: %v\n", e.File, e.Err)
		return err
	}

	res := e.Result
	speech := float64(res.SpeechSamples()) / float64(max(res.SampleRate, 1))
	ratio := 0.0
	if d := res.Duration(); d > 0 {
		ratio = 100 * speech / d
	}

	if _, err := headerColor.Fprintf(w, "%s\n", e.File); err != nil {
		return err
	}
	if _, err := dimColor.Fprintf(w, "  %d Hz, %.2fs, %d segments, %.2fs speech (%.1f%%)\n",
		res.SampleRate, res.Duration(), len(res.Segments), speech, ratio); err != nil {
		return err
	}
	for i, ts := range res.Timestamps {
		_, err := speechColor.Fprintf(w, "  %3d  %9.3fs  %9.3fs  %8d  %8d\n",
			i+1,
			float64(ts.Start)/float64(res.SampleRate),
			float64(ts.End)/float64(res.SampleRate),
			ts.Start, ts.End)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteProbabilities writes one tab-separated line per frame.
func WriteProbabilities(w io.Writer, probs []segment.FrameProbability) error {
	var b strings.Builder
	b.WriteString("offset\tseconds\tprobability\n")
	for _, p := range probs {
		fmt.Fprintf(&b, "%d\t%.3f\t%.4f\n", p.Offset, p.Seconds, p.Probability)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type snapshot struct {
	File       string              `json:"file"`
	SampleRate int                 `json:"sampling_rate"`
	Timestamps []segment.Timestamp `json:"speech_timestamps"`
}

type snapshotFile struct {
	Model     string     `json:"model"`
	Snapshots []snapshot `json:"snapshots"`
}

// WriteSnapshot writes the regression snapshot for entries. Failed entries
// are skipped. File names are reduced to their base name so snapshots do
// not depend on the working directory.
func WriteSnapshot(w io.Writer, model string, entries []Entry) error {
	out := snapshotFile{Model: model, Snapshots: make([]snapshot, 0, len(entries))}
	for _, e := range entries {
		if e.Err != nil || e.Result == nil {
			continue
		}
		ts := e.Result.Timestamps
		if ts == nil {
			ts = []segment.Timestamp{}
		}
		out.Snapshots = append(out.Snapshots, snapshot{
			File:       filepath.Base(e.File),
			SampleRate: e.Result.SampleRate,
			Timestamps: ts,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
