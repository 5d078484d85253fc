package service

import "github.com/metastudy/metastudy-api/internal/models"

// parentPolicy captures how the submission lifecycle varies per parent kind.
// One table entry replaces what the original platform implemented four times
// over in separate services.
type parentPolicy struct {
	kind string

	// restrictToRoster rejects submissions from students outside the
	// parent's assigned-student list. Plain assignments accept any student.
	restrictToRoster bool

	// placeholders pre-creates assigned-status records for the roster at
	// creation time, so the member list renders before any upload exists.
	placeholders bool

	// shared treats one member's upload as the whole roster's submission:
	// every non-graded record is synchronized to the new file.
	shared bool

	// resetGradeOnResubmit clears grading fields when a file is replaced.
	// Tests re-enter the grading pipeline on every resubmission.
	resetGradeOnResubmit bool

	// autoGradable allows GradingMode auto and triggers background grading.
	autoGradable bool
}

var policies = map[string]parentPolicy{
	models.KindAssignment: {
		kind: models.KindAssignment,
	},
	models.KindGroup: {
		kind:             models.KindGroup,
		restrictToRoster: true,
		placeholders:     true,
		shared:           true,
	},
	models.KindPresentation: {
		kind:             models.KindPresentation,
		restrictToRoster: true,
	},
	models.KindTest: {
		kind:                 models.KindTest,
		restrictToRoster:     true,
		resetGradeOnResubmit: true,
		autoGradable:         true,
	},
}

// Kinds returns the parent kinds the lifecycle knows about.
func Kinds() []string {
	return []string{models.KindAssignment, models.KindGroup, models.KindPresentation, models.KindTest}
}
