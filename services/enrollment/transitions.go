package enrollment

import "lms/models/course"

var legalTransitions = map[course.EnrollmentStatus][]course.EnrollmentStatus{
	course.EnrollmentPending:   {course.EnrollmentActive, course.EnrollmentDropped},
	course.EnrollmentActive:    {course.EnrollmentCompleted, course.EnrollmentSuspended, course.EnrollmentDropped},
	course.EnrollmentSuspended: {course.EnrollmentActive, course.EnrollmentDropped},
}

// CanTransition reports whether an enrollment may move from one status to
// another. Rows still carrying the legacy approved status behave as active.
func CanTransition(from, to course.EnrollmentStatus) bool {
	if from == course.EnrollmentApproved {
		from = course.EnrollmentActive
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s course.EnrollmentStatus) bool {
	switch s {
	case course.EnrollmentCompleted, course.EnrollmentDropped, course.EnrollmentFailed:
		return true
	}
	return false
}

// IsEnrolled reports whether the status allows progress writes.
func IsEnrolled(s course.EnrollmentStatus) bool {
	switch s {
	case course.EnrollmentActive, course.EnrollmentApproved, course.EnrollmentCompleted:
		return true
	}
	return false
}

func IsValidStatus(s course.EnrollmentStatus) bool {
	switch s {
	case course.EnrollmentPending, course.EnrollmentActive, course.EnrollmentApproved,
		course.EnrollmentCompleted, course.EnrollmentDropped, course.EnrollmentSuspended,
		course.EnrollmentFailed:
		return true
	}
	return false
}
