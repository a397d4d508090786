package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMastery_WeightedSum(t *testing.T) {
	// 8/10 completed -> 32, quiz 75 -> 22.5, code 70 -> 14, consistency 80 -> 8
	score := CalculateMastery(8, 10, 75, 70, 80)
	assert.Equal(t, 76.5, score)
}

func TestCalculateMastery_WeightIsolation(t *testing.T) {
	assert.Equal(t, 40.0, CalculateMastery(10, 10, 0, 0, 0))
	assert.Equal(t, 30.0, CalculateMastery(0, 0, 100, 0, 0))
	assert.Equal(t, 20.0, CalculateMastery(0, 0, 0, 100, 0))
	assert.Equal(t, 10.0, CalculateMastery(0, 0, 0, 0, 100))
}

func TestCalculateMastery_NoExercises(t *testing.T) {
	// Zero attempts contribute a zero completion component, not a division error.
	score := CalculateMastery(0, 0, 80, 80, 80)
	assert.Equal(t, 48.0, score)
}

func TestCalculateMastery_FullMarks(t *testing.T) {
	assert.Equal(t, 100.0, CalculateMastery(10, 10, 100, 100, 100))
}

func TestCalculateMastery_Zero(t *testing.T) {
	assert.Equal(t, 0.0, CalculateMastery(0, 0, 0, 0, 0))
}

func TestCalculateMastery_RoundsToTwoDecimals(t *testing.T) {
	// 1/3 completed -> 13.333... * weight; the result must carry exactly
	// two decimal places.
	score := CalculateMastery(1, 3, 0, 0, 0)
	assert.Equal(t, 13.33, score)
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, BandBeginner, BandFor(0))
	assert.Equal(t, BandBeginner, BandFor(40))
	assert.Equal(t, BandBeginner, BandFor(40.99))
	assert.Equal(t, BandLearning, BandFor(41))
	assert.Equal(t, BandLearning, BandFor(70))
	assert.Equal(t, BandProficient, BandFor(71))
	assert.Equal(t, BandProficient, BandFor(90))
	assert.Equal(t, BandMastered, BandFor(91))
	assert.Equal(t, BandMastered, BandFor(100))
}
