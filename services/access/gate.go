// Package access decides which modules of a course a student may open.
//
// A module is open when it is the first one, when the student already
// started it, or when its predecessor is cleared: a passing quiz attempt if
// the predecessor carries a quiz, otherwise a completed predecessor. The
// decision is recomputed on every read.
package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lms/models/course"
)

// PassingThreshold is the minimum quiz percentage that unlocks the next module.
const PassingThreshold = 60.0

// Module is the part of a course module the gate looks at.
type Module struct {
	ID     uint  `json:"id"`
	Order  int   `json:"order"`
	QuizID *uint `json:"quiz_id,omitempty"`
	// Empty modules have no published content. They count as cleared as
	// soon as they are open.
	Empty bool `json:"empty,omitempty"`
}

type Attempt struct {
	ID              uint                     `json:"id"`
	QuizID          uint                     `json:"quiz_id"`
	Status          course.QuizAttemptStatus `json:"status"`
	PercentageScore float64                  `json:"percentage_score"`
	SubmittedAt     *time.Time               `json:"submitted_at"`
}

// QuizAttemptReader returns the best submitted or graded attempt scoring at
// least threshold, or nil when there is none.
type QuizAttemptReader interface {
	BestPassingAttempt(ctx context.Context, studentID, quizID uint, threshold float64) (*Attempt, error)
}

// ProgressReader returns the module statuses recorded for a student.
type ProgressReader interface {
	ModuleStatuses(ctx context.Context, studentID, courseID uint) (map[uint]course.ProgressStatus, error)
}

// Decision is the gate's verdict for one module.
type Decision struct {
	Accessible bool   `json:"accessible"`
	Reason     string `json:"reason,omitempty"`
}

// Snapshot is everything Evaluate needs to know about a student.
type Snapshot struct {
	Statuses map[uint]course.ProgressStatus
	// PassedQuizzes holds the quiz ids with a passing attempt.
	PassedQuizzes map[uint]bool
}

// Evaluate applies the gating policy to modules. It does no I/O.
//
// When the module with order-1 is missing, the nearest lower order module is
// the predecessor. A module with no lower order module is open.
func Evaluate(modules []Module, snap Snapshot) map[uint]Decision {
	ordered := make([]Module, len(modules))
	copy(ordered, modules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	out := make(map[uint]Decision, len(ordered))
	for i, m := range ordered {
		if m.Order <= 1 || i == 0 {
			out[m.ID] = Decision{Accessible: true}
			continue
		}

		switch snap.Statuses[m.ID] {
		case course.ProgressInProgress, course.ProgressCompleted:
			out[m.ID] = Decision{Accessible: true}
			continue
		}

		prev, ok := predecessor(ordered[:i], m.Order)
		if !ok {
			out[m.ID] = Decision{Accessible: true}
			continue
		}

		if prev.QuizID != nil {
			if snap.PassedQuizzes[*prev.QuizID] {
				out[m.ID] = Decision{Accessible: true}
			} else {
				out[m.ID] = Decision{Reason: fmt.Sprintf("Score at least %.0f%% on the quiz of module %d", PassingThreshold, prev.Order)}
			}
			continue
		}

		switch {
		case snap.Statuses[prev.ID] == course.ProgressCompleted:
			out[m.ID] = Decision{Accessible: true}
		case prev.Empty:
			out[m.ID] = out[prev.ID]
		default:
			out[m.ID] = Decision{Reason: fmt.Sprintf("Complete module %d first", prev.Order)}
		}
	}
	return out
}

// predecessor picks the highest order module below order from a sorted slice.
func predecessor(before []Module, order int) (Module, bool) {
	for i := len(before) - 1; i >= 0; i-- {
		if before[i].Order < order {
			return before[i], true
		}
	}
	return Module{}, false
}

// Gate evaluates the policy against live progress and quiz attempts.
type Gate struct {
	progress ProgressReader
	quizzes  QuizAttemptReader
}

func NewGate(progress ProgressReader, quizzes QuizAttemptReader) *Gate {
	return &Gate{progress: progress, quizzes: quizzes}
}

// ComputeAccessibility returns moduleID -> accessible for every module.
func (g *Gate) ComputeAccessibility(ctx context.Context, studentID, courseID uint, modules []Module) (map[uint]bool, error) {
	decisions, err := g.Explain(ctx, studentID, courseID, modules)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]bool, len(decisions))
	for id, d := range decisions {
		out[id] = d.Accessible
	}
	return out, nil
}

// Explain is ComputeAccessibility with a reason for every locked module.
func (g *Gate) Explain(ctx context.Context, studentID, courseID uint, modules []Module) (map[uint]Decision, error) {
	snap, err := g.snapshot(ctx, studentID, courseID, modules)
	if err != nil {
		return nil, err
	}
	return Evaluate(modules, snap), nil
}

// Decide returns the decision for a single module of the course.
func (g *Gate) Decide(ctx context.Context, studentID, courseID uint, modules []Module, moduleID uint) (Decision, error) {
	decisions, err := g.Explain(ctx, studentID, courseID, modules)
	if err != nil {
		return Decision{}, err
	}
	d, ok := decisions[moduleID]
	if !ok {
		return Decision{Reason: "Module is not part of this course"}, nil
	}
	return d, nil
}

func (g *Gate) snapshot(ctx context.Context, studentID, courseID uint, modules []Module) (Snapshot, error) {
	statuses, err := g.progress.ModuleStatuses(ctx, studentID, courseID)
	if err != nil {
		return Snapshot{}, err
	}

	passed := make(map[uint]bool)
	for _, m := range modules {
		if m.QuizID == nil {
			continue
		}
		if _, seen := passed[*m.QuizID]; seen {
			continue
		}
		attempt, err := g.quizzes.BestPassingAttempt(ctx, studentID, *m.QuizID, PassingThreshold)
		if err != nil {
			return Snapshot{}, err
		}
		passed[*m.QuizID] = attempt != nil && attempt.PercentageScore >= PassingThreshold
	}
	return Snapshot{Statuses: statuses, PassedQuizzes: passed}, nil
}
