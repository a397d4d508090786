package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

func TestLearningEvent_Validate(t *testing.T) {
	now := time.Now().UTC()

	valid := LearningEvent{
		StudentID: "student-1",
		Topic:     "goroutines",
		Kind:      KindExercise,
		Status:    StatusCompleted,
		Timestamp: now,
	}
	assert.NoError(t, valid.Validate())

	missingStudent := valid
	missingStudent.StudentID = ""
	assert.ErrorIs(t, missingStudent.Validate(), shared.ErrEmptyValue)
	assert.True(t, shared.IsValidation(missingStudent.Validate()))

	missingKind := valid
	missingKind.Kind = ""
	assert.ErrorIs(t, missingKind.Validate(), shared.ErrEmptyValue)

	unknownKind := valid
	unknownKind.Kind = "lecture"
	assert.ErrorIs(t, unknownKind.Validate(), shared.ErrInvalidInput)

	missingTimestamp := valid
	missingTimestamp.Timestamp = time.Time{}
	assert.ErrorIs(t, missingTimestamp.Validate(), shared.ErrEmptyValue)

	badStatus := valid
	badStatus.Status = "skipped"
	assert.ErrorIs(t, badStatus.Validate(), shared.ErrInvalidInput)
}

func TestLearningEvent_ValidateGradedScores(t *testing.T) {
	now := time.Now().UTC()

	quiz := LearningEvent{
		StudentID: "student-1",
		Kind:      KindQuiz,
		Score:     85,
		Timestamp: now,
	}
	assert.NoError(t, quiz.Validate())

	quiz.Score = -1
	assert.ErrorIs(t, quiz.Validate(), shared.ErrValueOutOfRange)

	quiz.Score = 101
	assert.ErrorIs(t, quiz.Validate(), shared.ErrValueOutOfRange)

	// Boundary scores are valid.
	quiz.Score = 0
	assert.NoError(t, quiz.Validate())
	quiz.Score = 100
	assert.NoError(t, quiz.Validate())

	// Exercises ignore the score field entirely.
	exercise := LearningEvent{
		StudentID: "student-1",
		Kind:      KindExercise,
		Status:    StatusFailed,
		Score:     -50,
		Timestamp: now,
	}
	assert.NoError(t, exercise.Validate())
}

func TestEventKind_IsGraded(t *testing.T) {
	assert.False(t, KindExercise.IsGraded())
	assert.True(t, KindQuiz.IsGraded())
	assert.True(t, KindCodeReview.IsGraded())
}
