package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectAndDrop(t *testing.T) {
	samples := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	segs := []Segment{{Start: 1, End: 3}, {Start: 6, End: 8}}

	assert.Equal(t, []int{1, 2, 6, 7}, Collect(samples, segs))
	assert.Equal(t, []int{0, 3, 4, 5, 8, 9}, Drop(samples, segs))
}

func TestCollectClampsOutOfRange(t *testing.T) {
	samples := []float32{1, 2, 3}
	segs := []Segment{{Start: 2, End: 10}}

	assert.Equal(t, []float32{3}, Collect(samples, segs))
	assert.Equal(t, []float32{1, 2}, Drop(samples, segs))
}

func TestCollectEmpty(t *testing.T) {
	samples := []float32{1, 2, 3}

	assert.Empty(t, Collect(samples, nil))
	assert.Equal(t, samples, Drop(samples, nil))
}
