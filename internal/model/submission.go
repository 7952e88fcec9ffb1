package model

import "time"

// MilestoneSubmission fields prefixed AI are written only by a grading pass.
type MilestoneSubmission struct {
	ID          int64      `json:"id"`
	MilestoneID int64      `json:"milestone_id"`
	AuthorID    int64      `json:"author_id"`
	Content     string     `json:"content"`
	Files       []string   `json:"files"`
	AIVerified  bool       `json:"ai_verified"`
	AIComment   *string    `json:"ai_comment"`
	AIScore     *int       `json:"ai_score"`
	GradedAt    *time.Time `json:"graded_at"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// Pending is true until a grading pass has written a verdict.
func (s MilestoneSubmission) Pending() bool {
	return s.GradedAt == nil
}

type GradeResult struct {
	Review string `json:"review" validate:"notblank"`
	Score  int    `json:"score" validate:"min=0,max=100"`
	Pass   bool   `json:"pass"`
}

func (g GradeResult) Verdict() string {
	if g.Pass {
		return "pass"
	}
	return "fail"
}

type Membership struct {
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	Role    string `json:"role"`
}
