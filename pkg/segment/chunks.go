package segment

// Collect concatenates the samples inside segs, giving a copy of the
// signal with silence removed. segs must be ordered, non-overlapping and
// index into samples.
func Collect[S ~[]E, E any](samples S, segs []Segment) S {
	n := 0
	for _, s := range segs {
		n += s.Len()
	}
	out := make(S, 0, n)
	for _, s := range segs {
		out = append(out, samples[clampIndex(s.Start, len(samples)):clampIndex(s.End, len(samples))]...)
	}
	return out
}

// Drop concatenates the samples outside segs.
func Drop[S ~[]E, E any](samples S, segs []Segment) S {
	out := make(S, 0, len(samples))
	cur := 0
	for _, s := range segs {
		start := clampIndex(s.Start, len(samples))
		if start > cur {
			out = append(out, samples[cur:start]...)
		}
		cur = max(cur, clampIndex(s.End, len(samples)))
	}
	return append(out, samples[cur:]...)
}

func clampIndex(i, n int) int {
	return max(0, min(i, n))
}
