package vectorutil

import (
	"fmt"
	"math"
	"slices"
)

// SoftMax takes a vector and calculates softmax scores of its values.
func SoftMax(vector []float32) []float32 {
	maxLogit := slices.Max(vector)
	shiftedExp := make([]float64, len(vector))
	for i, logit := range vector {
		shiftedExp[i] = math.Exp(float64(logit - maxLogit))
	}
	sumExp := 0.0
	for _, exp := range shiftedExp {
		sumExp += exp
	}
	scores := make([]float32, len(vector))
	for i, exp := range shiftedExp {
		scores[i] = float32(exp / sumExp)
	}
	return scores
}

// Sigmoid maps every value of the vector into (0, 1).
func Sigmoid(vector []float32) []float32 {
	scores := make([]float32, 0, len(vector))
	for _, v := range vector {
		scores = append(scores, float32(1.0/(1.0+math.Exp(-float64(v)))))
	}
	return scores
}

// ArgMax finds both the index of the max value in s and the max value.
func ArgMax(s []float32) (int, float32, error) {
	if len(s) == 0 {
		return 0, 0, fmt.Errorf("attempted to calculate argmax of empty slice")
	}
	maxIndex := 0
	maxValue := s[0]
	for i, v := range s {
		if v > maxValue {
			maxValue = v
			maxIndex = i
		}
	}
	return maxIndex, maxValue, nil
}

// ToFloat64 widens a float32 vector for consumers that work in float64.
func ToFloat64(vector []float32) []float64 {
	out := make([]float64, len(vector))
	for i, v := range vector {
		out[i] = float64(v)
	}
	return out
}
