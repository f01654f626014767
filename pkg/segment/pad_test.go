package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name  string
		segs  []Segment
		pad   int
		total int
		want  []Segment
	}{
		{
			name:  "no padding",
			segs:  []Segment{{100, 200}},
			pad:   0,
			total: 1000,
			want:  []Segment{{100, 200}},
		},
		{
			name:  "clamped to stream bounds",
			segs:  []Segment{{10, 200}, {800, 995}},
			pad:   30,
			total: 1000,
			want:  []Segment{{0, 230}, {770, 1000}},
		},
		{
			name:  "wide gap gets full padding",
			segs:  []Segment{{100, 200}, {300, 400}},
			pad:   50,
			total: 1000,
			want:  []Segment{{50, 250}, {250, 450}},
		},
		{
			name:  "narrow gap splits at the midpoint",
			segs:  []Segment{{100, 200}, {240, 400}},
			pad:   50,
			total: 1000,
			want:  []Segment{{50, 220}, {220, 450}},
		},
		{
			name:  "gap smaller than pad",
			segs:  []Segment{{100, 200}, {210, 400}},
			pad:   30,
			total: 1000,
			want:  []Segment{{70, 205}, {205, 430}},
		},
		{
			name:  "odd gap leaves one sample unassigned",
			segs:  []Segment{{100, 200}, {205, 400}},
			pad:   30,
			total: 1000,
			want:  []Segment{{70, 202}, {203, 430}},
		},
		{
			name:  "adjacent segments stay put",
			segs:  []Segment{{100, 200}, {200, 300}},
			pad:   30,
			total: 1000,
			want:  []Segment{{70, 200}, {200, 330}},
		},
		{
			name:  "empty",
			segs:  nil,
			pad:   30,
			total: 1000,
			want:  []Segment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pad(tt.segs, tt.pad, tt.total))
		})
	}
}

func TestPadDoesNotCascade(t *testing.T) {
	// three close segments: the middle one's bounds come from the unpadded
	// neighbours, not from their already padded values
	segs := []Segment{{100, 200}, {220, 300}, {320, 400}}
	got := Pad(segs, 100, 1000)

	assert.Equal(t, []Segment{{0, 210}, {210, 310}, {310, 500}}, got)
	assert.Equal(t, []Segment{{100, 200}, {220, 300}, {320, 400}}, segs, "input untouched")
}
