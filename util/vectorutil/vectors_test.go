package vectorutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftMax(t *testing.T) {
	scores := SoftMax([]float32{1, 2, 3})
	sum := float32(0)
	for _, s := range scores {
		sum += s
	}
	assert.InDelta(t, 1.0, float64(sum), 1e-6)
	assert.Greater(t, scores[2], scores[1])
	assert.Greater(t, scores[1], scores[0])
}

func TestSigmoid(t *testing.T) {
	scores := Sigmoid([]float32{-10, 0, 10})
	for _, s := range scores {
		assert.Greater(t, s, float32(0))
		assert.Less(t, s, float32(1))
	}
	assert.InDelta(t, 0.5, float64(scores[1]), 1e-6)
}

func TestArgMax(t *testing.T) {
	index, value, err := ArgMax([]float32{0.1, 0.7, 0.2})
	assert.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, float32(0.7), value)

	_, _, err = ArgMax(nil)
	assert.Error(t, err)
}

func TestToFloat64(t *testing.T) {
	out := ToFloat64([]float32{1.5, -2})
	assert.Equal(t, []float64{1.5, -2}, out)
	if math.IsNaN(out[0]) {
		t.Fatal("unexpected NaN")
	}
}
