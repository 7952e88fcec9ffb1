package classifier

import (
	"fmt"
	"strings"
	"time"
)

const intentSystemPrompt = `You are the assistant of a study group chat. You read the recent conversation
and the message that was just posted, and you decide whether to say anything.

Rules:
1. Respond only if you are directly addressed (for example "@AI") or if the
   conversation clearly calls for scheduling study sessions or creating milestones.
2. Never respond to a request that was already answered or resolved earlier in the
   transcript. Lines from "AI" are your own earlier turns.
3. When unsure, do not respond.

Reply with exactly one JSON object and nothing else:
{
  "shouldRespond": boolean,
  "replyText": string,
  "actionKind": "schedule_sessions" | "create_milestones" | null,
  "sessionDrafts": [{"title": string, "description": string, "when": RFC3339 timestamp, "endsAt": RFC3339 timestamp (optional)}] | null,
  "milestoneDrafts": [{"title": string, "description": string, "dueDate": "YYYY-MM-DD"}] | null
}

actionKind is null exactly when both draft lists are null. Use sessionDrafts only with
"schedule_sessions" and milestoneDrafts only with "create_milestones". If you do not
respond, return {"shouldRespond": false, "replyText": "", "actionKind": null,
"sessionDrafts": null, "milestoneDrafts": null}.`

const gradeSystemPrompt = `You review work submitted by a student against a study milestone.

Reward submissions that state concrete, verifiable facts, worked examples or specific
results that address the milestone. Penalize vague restatements of the milestone,
filler, and content unrelated to it. A submission passes when it shows the milestone
was actually done.

Reply with exactly one JSON object and nothing else:
{"review": string (2-4 sentences of feedback addressed to the student), "score": integer 0-100, "pass": boolean}`

// IntentRequest is the input of one intent decision.
type IntentRequest struct {
	Transcript string
	// Trigger is the just-posted message as "Name: text".
	Trigger string
	Now     time.Time
}

func intentPrompt(req IntentRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n\n", req.Now.UTC().Format(time.RFC3339))
	b.WriteString("Recent conversation (oldest first):\n")
	if strings.TrimSpace(req.Transcript) == "" {
		b.WriteString("(no earlier messages)\n")
	} else {
		b.WriteString(req.Transcript)
		if !strings.HasSuffix(req.Transcript, "\n") {
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "\nJust posted:\n%s\n", req.Trigger)
	return b.String()
}

// GradeRequest is the input of one grading pass.
type GradeRequest struct {
	MilestoneTitle       string
	MilestoneDescription string
	Content              string
	Files                []string
}

func gradePrompt(req GradeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Milestone: %s\n", req.MilestoneTitle)
	if req.MilestoneDescription != "" {
		fmt.Fprintf(&b, "Milestone description: %s\n", req.MilestoneDescription)
	}
	b.WriteString("\nSubmission:\n")
	b.WriteString(req.Content)
	b.WriteByte('\n')
	if len(req.Files) > 0 {
		fmt.Fprintf(&b, "\nAttached files: %s\n", strings.Join(req.Files, ", "))
	}
	return b.String()
}
