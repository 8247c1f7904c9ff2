package export

import (
	"strconv"
	"strings"

	"course-workbench/internal/derive"
	"course-workbench/internal/domain"
)

const notFilled = "(not filled)"

func orNot(s, placeholder string) string {
	if s = strings.TrimSpace(s); s == "" {
		return placeholder
	}
	return s
}

func number(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func toolRefs(rec domain.CourseRecord) (primary, secondary string) {
	return derive.ToolLabel(rec.PrimaryTool), derive.ToolLabels(rec.SecondaryTools, "；")
}

// Prompt is the planning brief handed to a writing assistant for rec.
func Prompt(rec domain.CourseRecord) string {
	primary, secondary := toolRefs(rec)
	return strings.Join([]string{
		"You are a planning partner for a children's emotional-learning program. Help me finish a course or activity plan in a warm, practical, non-preachy voice.",
		"",
		"[Known details]",
		"- Topic: " + orNot(rec.Title, notFilled),
		"- Format: " + orNot(rec.KindText(), notFilled),
		"- Session minutes: " + orNot(number(rec.DurationMinutes), notFilled) + "; total: " + orNot(rec.TotalDuration, notFilled),
		"- Capacity: " + orNot(number(rec.Capacity), notFilled),
		"- Location: " + orNot(rec.Location, notFilled) + " (" + orNot(rec.VenueType, notFilled) + ")",
		"- Core concept: " + orNot(rec.CoreConcept, notFilled),
		"- Tool books: primary: " + primary + "; secondary: " + secondary,
		"- Summary: " + orNot(rec.Summary, notFilled),
		"",
		"[Please produce]",
		"a. Suggested titles (at least 5)",
		"b. Activity description parents and teachers can follow",
		"c. Flow with time allocation",
		"d. KPIs and feedback (how results become visible)",
		"e. One-page proposal",
		"f. Detailed plan: slide outline, talk track and exercises",
		"",
		"[Format]",
		"- Ready to paste into my course sheet",
		"- Clear bullet points in words that can be said out loud",
		"- Every section explains how the tool books are used",
	}, "\n")
}

// Proposal is the short proposal block shown next to the editor.
func Proposal(rec domain.CourseRecord) string {
	primary, secondary := toolRefs(rec)
	return strings.Join([]string{
		"[Proposal] " + orNot(rec.Title, notFilled),
		"[Format] " + orNot(rec.KindText(), notFilled),
		"[Duration] session: " + orNot(number(rec.DurationMinutes), notFilled) + " | total: " + orNot(rec.TotalDuration, notFilled),
		"[Capacity] " + orNot(number(rec.Capacity), notFilled),
		"[Location] " + orNot(rec.Location, notFilled) + " (" + orNot(rec.VenueType, notFilled) + ")",
		"[Core concept] " + orNot(rec.CoreConcept, notFilled),
		"[Tool books] primary: " + primary + " | secondary: " + secondary,
		"",
		"[Summary]",
		orNot(rec.Summary, notFilled),
	}, "\n")
}
