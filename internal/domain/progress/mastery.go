package progress

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// MASTERY SCORING
// ══════════════════════════════════════════════════════════════════════════════

// Mastery weights. These are part of the scoring contract with downstream
// consumers and dashboards; changing them invalidates stored scores.
const (
	WeightCompletion  = 0.4
	WeightQuiz        = 0.3
	WeightCodeQuality = 0.2
	WeightConsistency = 0.1
)

// MasteryBand is a human-readable classification of a mastery score.
type MasteryBand string

const (
	BandBeginner   MasteryBand = "Beginner"
	BandLearning   MasteryBand = "Learning"
	BandProficient MasteryBand = "Proficient"
	BandMastered   MasteryBand = "Mastered"
)

// String returns the string representation.
func (b MasteryBand) String() string {
	return string(b)
}

// CalculateMastery computes the weighted mastery score from the aggregate
// inputs. All score inputs are on the 0-100 scale. The completion rate is 0
// when no exercises have been attempted. The result is clamped to [0,100]
// and rounded to two decimal places.
func CalculateMastery(exercisesCompleted, totalExercises int, avgQuizScore, avgCodeQuality, consistencyScore float64) float64 {
	completionRate := 0.0
	if totalExercises > 0 {
		completionRate = float64(exercisesCompleted) / float64(totalExercises)
	}

	mastery := completionRate*100*WeightCompletion +
		avgQuizScore*WeightQuiz +
		avgCodeQuality*WeightCodeQuality +
		consistencyScore*WeightConsistency

	if mastery < 0 {
		mastery = 0
	}
	if mastery > 100 {
		mastery = 100
	}

	return math.Round(mastery*100) / 100
}

// BandFor classifies a mastery score. Boundaries are lower-inclusive:
// 41.0 is Learning, 71.0 is Proficient, 91.0 is Mastered.
func BandFor(score float64) MasteryBand {
	switch {
	case score < 41:
		return BandBeginner
	case score < 71:
		return BandLearning
	case score < 91:
		return BandProficient
	default:
		return BandMastered
	}
}
