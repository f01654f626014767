package segment

// Pad widens each segment by pad samples on both sides, within
// [0, totalSamples). Bounds come from the unpadded neighbours: when the gap
// between two segments is shorter than 2*pad it is split at its midpoint,
// so padded segments never overlap. segs is not modified.
func Pad(segs []Segment, pad, totalSamples int) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		lo := 0
		if i > 0 {
			gap := s.Start - segs[i-1].End
			lo = s.Start - gap/2
		}
		hi := totalSamples
		if i < len(segs)-1 {
			gap := segs[i+1].Start - s.End
			hi = s.End + gap/2
		}

		out[i] = Segment{
			Start: max(lo, max(0, s.Start-pad)),
			End:   min(hi, min(totalSamples, s.End+pad)),
		}
	}
	return out
}
