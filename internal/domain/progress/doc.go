// Package progress contains the domain model for student topic mastery.
//
// It is the core of the LearnFlow progress hub. The package defines:
//
//   - Entities: Aggregate (per student+topic), LearningEvent, Alert
//   - Value objects: EventKind, EventStatus, AlertType, Severity, MasteryBand
//   - Pure calculators: mastery scoring and struggle detection
//   - Repository interfaces implemented in infrastructure/persistence
//
// # Architecture
//
// The package follows Clean Architecture and DDD:
//
//  1. Zero external dependencies, standard library only
//  2. Dependency inversion: interfaces here, implementations in infrastructure
//  3. Rich domain model: folding and scoring live on the entities
//
// # Core flow
//
// Each learning event is validated and folded into the student's topic
// aggregate, which recomputes a derived mastery score:
//
//	agg := NewAggregate(studentID, topic)
//	agg.Apply(event, totalStudentEvents)
//	band := BandFor(agg.MasteryScore)
//
// Struggle detection evaluates the student's trailing event window and
// returns at most one alert:
//
//	detector := NewDetector()
//	result := detector.Detect(studentID, events, time.Now().UTC())
//	if result.Alert != nil {
//	    // escalate
//	}
package progress
