package progress

import (
	"sort"
	"time"

	"lms/apperror"
	"lms/models/course"
	"lms/services/catalog"

	"gorm.io/datatypes"
)

// Event is one content progress report. All fields are optional.
type Event struct {
	Status        *course.ProgressStatus `json:"status,omitempty"`
	Progress      *int                   `json:"progress,omitempty"`      // absolute value
	ProgressDelta *int                   `json:"progressDelta,omitempty"` // added to the recorded value
	TimeSpent     int                    `json:"timeSpent,omitempty"`     // minutes to add
}

func (e Event) Validate() error {
	if e.Status != nil && *e.Status != course.ProgressInProgress && *e.Status != course.ProgressCompleted {
		return apperror.InvalidRequest("Status must be in_progress or completed!")
	}
	if e.Progress != nil && e.ProgressDelta != nil {
		return apperror.InvalidRequest("Send either progress or progressDelta, not both!")
	}
	if e.Progress != nil && (*e.Progress < 0 || *e.Progress > 100) {
		return apperror.InvalidRequest("Progress must be between 0 and 100!")
	}
	if e.ProgressDelta != nil && (*e.ProgressDelta < 0 || *e.ProgressDelta > 100) {
		return apperror.InvalidRequest("Progress delta must be between 0 and 100!")
	}
	if e.TimeSpent < 0 {
		return apperror.InvalidRequest("Time spent cannot be negative!")
	}
	return nil
}

// Percent is round(100*done/total) on integers, rounding halves up.
func Percent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return (200*done + total) / (2 * total)
}

// CourseProgress is the course-level part of an update result.
type CourseProgress struct {
	OverallProgress  int                   `json:"overallProgress"`
	Status           course.ProgressStatus `json:"status"`
	TotalTimeSpent   int                   `json:"totalTimeSpent"`
	CompletedModules int                   `json:"completedModules"`
	TotalModules     int                   `json:"totalModules"`
	LastActivityAt   *time.Time            `json:"lastActivityAt,omitempty"`
	CompletedAt      *time.Time            `json:"completedAt,omitempty"`
	Version          int64                 `json:"version"`
}

type applied struct {
	content       course.ContentProgress
	module        course.ModuleProgress
	overall       CourseProgress
	justCompleted bool
}

// apply folds ev into doc in place. outline may be empty when the catalog
// does not know the course; denominators are then the touched entries only.
func apply(doc *course.LearningProgress, outline []catalog.ModuleOutline, moduleID, contentID uint, ev Event, now time.Time) applied {
	modules := cloneModules(doc.Modules.Data())
	wasCompleted := doc.Status == course.ProgressCompleted

	mi := -1
	for i := range modules {
		if modules[i].ModuleID == moduleID {
			mi = i
			break
		}
	}
	if mi < 0 {
		modules = append(modules, course.ModuleProgress{
			ModuleID:  moduleID,
			Status:    course.ProgressNotStarted,
			StartedAt: &now,
		})
		mi = len(modules) - 1
	}
	mod := &modules[mi]

	ci := -1
	for i := range mod.Contents {
		if mod.Contents[i].ContentID == contentID {
			ci = i
			break
		}
	}
	if ci < 0 {
		mod.Contents = append(mod.Contents, course.ContentProgress{ContentID: contentID, Status: course.ProgressNotStarted})
		ci = len(mod.Contents) - 1
	}
	applyContent(&mod.Contents[ci], ev, now)

	var outlineModule *catalog.ModuleOutline
	if m, ok := catalog.Find(outline, moduleID); ok {
		outlineModule = &m
	}
	recomputeModule(mod, outlineModule, now)

	sortModules(modules, outline)
	completed, total := recomputeCourse(doc, modules, outline, ev.TimeSpent, now)
	doc.Modules = datatypes.NewJSONType(modules)

	var result applied
	for _, m := range modules {
		if m.ModuleID != moduleID {
			continue
		}
		result.module = m
		for _, c := range m.Contents {
			if c.ContentID == contentID {
				result.content = c
			}
		}
	}
	result.overall = CourseProgress{
		OverallProgress:  doc.OverallProgress,
		Status:           doc.Status,
		TotalTimeSpent:   doc.TotalTimeSpent,
		CompletedModules: completed,
		TotalModules:     total,
		LastActivityAt:   doc.LastActivityAt,
		CompletedAt:      doc.CompletedAt,
	}
	result.justCompleted = !wasCompleted && doc.Status == course.ProgressCompleted
	return result
}

func applyContent(c *course.ContentProgress, ev Event, now time.Time) {
	value := c.Progress
	switch {
	case ev.Progress != nil:
		value = *ev.Progress
	case ev.ProgressDelta != nil:
		value = c.Progress + *ev.ProgressDelta
	}
	if value > 100 {
		value = 100
	}
	if value > c.Progress {
		c.Progress = value
	}

	next := course.ProgressInProgress
	if (ev.Status != nil && *ev.Status == course.ProgressCompleted) || c.Progress >= 100 {
		next = course.ProgressCompleted
	}
	c.Status = c.Status.Advance(next)
	if c.Status == course.ProgressCompleted {
		c.Progress = 100
		if c.CompletedAt == nil {
			c.CompletedAt = &now
		}
	}

	c.TimeSpent += ev.TimeSpent
	c.LastActivityAt = &now
}

func recomputeModule(mod *course.ModuleProgress, outline *catalog.ModuleOutline, now time.Time) {
	known := make(map[uint]bool)
	if outline != nil {
		for _, id := range outline.ContentIDs {
			known[id] = true
		}
	}
	done := 0
	started := false
	for _, c := range mod.Contents {
		known[c.ContentID] = true
		if c.Status == course.ProgressCompleted {
			done++
		}
		if c.Status != course.ProgressNotStarted || c.Progress > 0 {
			started = true
		}
	}

	mod.Progress = Percent(done, len(known))
	next := course.ProgressNotStarted
	switch {
	case mod.Progress >= 100:
		next = course.ProgressCompleted
	case mod.Progress > 0 || started:
		next = course.ProgressInProgress
	}
	mod.Status = mod.Status.Advance(next)
	if mod.Status == course.ProgressCompleted && mod.CompletedAt == nil {
		mod.CompletedAt = &now
	}
}

// recomputeCourse derives the course aggregate from modules and returns the
// completed and total module counts used. Catalog modules without published
// content are left out of both counts.
func recomputeCourse(doc *course.LearningProgress, modules []course.ModuleProgress, outline []catalog.ModuleOutline, timeSpent int, now time.Time) (int, int) {
	known := make(map[uint]bool, len(outline)+len(modules))
	empty := make(map[uint]bool)
	for _, m := range outline {
		if m.Empty {
			empty[m.ID] = true
			continue
		}
		known[m.ID] = true
	}
	done := 0
	for _, m := range modules {
		if empty[m.ModuleID] {
			continue
		}
		known[m.ModuleID] = true
		if m.Status == course.ProgressCompleted {
			done++
		}
	}

	doc.OverallProgress = Percent(done, len(known))
	next := course.ProgressInProgress
	if doc.OverallProgress >= 100 {
		next = course.ProgressCompleted
	}
	doc.Status = doc.Status.Advance(next)
	if doc.Status == course.ProgressCompleted && doc.CompletedAt == nil {
		doc.CompletedAt = &now
	}
	doc.TotalTimeSpent += timeSpent
	doc.LastActivityAt = &now
	return done, len(known)
}

// sortModules keeps catalog modules in course order, followed by modules the
// catalog does not list in the order they were first touched.
func sortModules(modules []course.ModuleProgress, outline []catalog.ModuleOutline) {
	rank := make(map[uint]int, len(outline))
	for _, m := range outline {
		rank[m.ID] = m.Order
	}
	sort.SliceStable(modules, func(i, j int) bool {
		ri, iok := rank[modules[i].ModuleID]
		rj, jok := rank[modules[j].ModuleID]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return false
	})
}

func cloneModules(in []course.ModuleProgress) []course.ModuleProgress {
	out := make([]course.ModuleProgress, len(in))
	for i, m := range in {
		out[i] = m
		out[i].Contents = append([]course.ContentProgress(nil), m.Contents...)
	}
	return out
}
