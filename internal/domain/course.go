package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the lifecycle bucket a CourseRecord lives in. Each stage maps to
// its own sheet on the remote store.
type Stage string

const (
	StageIdea  Stage = "idea"
	StageDraft Stage = "draft"
	StageFinal Stage = "final"
)

var Stages = []Stage{StageIdea, StageDraft, StageFinal}

func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case StageIdea:
		return StageIdea, nil
	case StageDraft:
		return StageDraft, nil
	case StageFinal:
		return StageFinal, nil
	}
	return "", &ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q (want idea, draft or final)", s)}
}

func (s Stage) Valid() bool {
	return s == StageIdea || s == StageDraft || s == StageFinal
}

// Next is the stage a normal promotion moves to. final has no next stage.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageIdea:
		return StageDraft, true
	case StageDraft:
		return StageFinal, true
	}
	return "", false
}

// DefaultStatus is the status a record gets when it is saved without one.
func (s Stage) DefaultStatus() string {
	if s == StageFinal {
		return "ready"
	}
	return string(s)
}

// Label is the sheet-facing name of the stage.
func (s Stage) Label() string {
	switch s {
	case StageIdea:
		return "發想"
	case StageDraft:
		return "草稿"
	case StageFinal:
		return "完稿"
	}
	return string(s)
}

// Kind is the course format.
type Kind string

const (
	KindTalk        Kind = "talk"
	KindSingleClass Kind = "single_class"
	KindSingleEvent Kind = "single_event"
	KindTraining    Kind = "training"
	KindModule      Kind = "module"
	KindOther       Kind = "other"
)

var kindLabels = map[Kind]string{
	KindTalk:        "單場演講",
	KindSingleClass: "單場課程",
	KindSingleEvent: "單場活動",
	KindTraining:    "研習（有作業）",
	KindModule:      "模組課程",
	KindOther:       "其他",
}

// ParseKind accepts either the stable kind value or its sheet label.
// Anything unrecognized maps to KindOther; CourseRecord.SetKind keeps the text.
func ParseKind(s string) Kind {
	v := strings.TrimSpace(s)
	if v == "" {
		return ""
	}
	if k, ok := lookupKind(v); ok {
		return k
	}
	return KindOther
}

func lookupKind(v string) (Kind, bool) {
	for k, label := range kindLabels {
		if strings.EqualFold(v, string(k)) || v == label {
			return k, true
		}
	}
	return "", false
}

func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// CourseRecord is the user's work item.
type CourseRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Kind      Kind   `json:"kind,omitempty"`
	KindOther string `json:"kindOther,omitempty"`

	Audience        string `json:"audience,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	TotalDuration   string `json:"totalDuration,omitempty"`
	Capacity        int    `json:"capacity,omitempty"`
	Location        string `json:"location,omitempty"`
	VenueType       string `json:"venueType,omitempty"`
	CoreConcept     string `json:"coreConcept,omitempty"`

	Summary    string `json:"summary,omitempty"`
	Objectives string `json:"objectives,omitempty"`
	Outline    string `json:"outline,omitempty"`
	Materials  string `json:"materials,omitempty"`
	Assets     string `json:"assets,omitempty"`
	Notes      string `json:"notes,omitempty"`

	// Derived fields.
	Tags  string `json:"tags,omitempty"`
	Links string `json:"links,omitempty"`

	PrimaryTool    *ToolRecord  `json:"primaryTool,omitempty"`
	SecondaryTools []ToolRecord `json:"secondaryTools,omitempty"`
	ModuleItems    string       `json:"moduleItems,omitempty"`

	Stage   Stage  `json:"stage"`
	Status  string `json:"status,omitempty"`
	Version string `json:"version,omitempty"`
	Owner   string `json:"owner,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// KindText renders the kind for humans, including the free-text escape value.
func (r CourseRecord) KindText() string {
	if r.Kind == KindOther {
		other := strings.TrimSpace(r.KindOther)
		if other == "" {
			other = "(not filled)"
		}
		return r.Kind.Label() + ": " + other
	}
	return r.Kind.Label()
}

// SetKind sets the kind from a value or label. Text that names no kind
// becomes KindOther with the text as its free-text value.
func (r *CourseRecord) SetKind(raw string) {
	r.Kind = Kind(raw)
	r.NormalizeKind()
}

// NormalizeKind folds labels and unknown text onto the enumerated kinds.
func (r *CourseRecord) NormalizeKind() {
	v := strings.TrimSpace(string(r.Kind))
	if v == "" {
		r.Kind = ""
		return
	}
	if k, ok := lookupKind(v); ok {
		r.Kind = k
		return
	}
	r.Kind = KindOther
	r.KindOther = v
}

// TagKind is the kind as it appears in tags. An "other" kind contributes its
// free text when it has one.
func (r CourseRecord) TagKind() string {
	if r.Kind == KindOther {
		if other := strings.TrimSpace(r.KindOther); other != "" {
			return other
		}
	}
	return string(r.Kind)
}

// NormalizeTools enforces the selection invariants on the record: secondary
// tools form a set by identity and never contain the primary tool.
func (r *CourseRecord) NormalizeTools() {
	if len(r.SecondaryTools) == 0 {
		r.SecondaryTools = nil
		return
	}
	seen := make(map[string]bool, len(r.SecondaryTools)+1)
	if r.PrimaryTool != nil {
		seen[r.PrimaryTool.Key()] = true
	}
	out := r.SecondaryTools[:0:0]
	for _, t := range r.SecondaryTools {
		k := t.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	r.SecondaryTools = out
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing tool slices.
func (r CourseRecord) Clone() CourseRecord {
	out := r
	if r.PrimaryTool != nil {
		p := *r.PrimaryTool
		out.PrimaryTool = &p
	}
	if r.SecondaryTools != nil {
		out.SecondaryTools = append([]ToolRecord(nil), r.SecondaryTools...)
	}
	return out
}
