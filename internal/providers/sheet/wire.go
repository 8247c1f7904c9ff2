package sheet

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"course-workbench/internal/domain"
)

const (
	toolSep      = "｜"
	toolListSep  = "；"
	toolUIDSep   = ","
	timestampFmt = time.RFC3339Nano
)

// Headers is the column order of every stage sheet. The first block mirrors
// the shared course sheet; the rest are workbench columns.
var Headers = []string{
	"id", "title", "type", "status", "version", "owner", "audience",
	"duration_min", "capacity", "tags", "summary", "objectives", "outline",
	"materials", "links", "assets", "notes", "created_at", "updated_at",
	"kind", "kind_other", "total_duration", "location", "venue_type",
	"core_concept", "main_tool", "sub_tools", "tool_uids", "module_items",
}

// flexString accepts whatever a spreadsheet cell turns into on the wire:
// "text", 90, 1.5, true or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}

	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexString(strconv.FormatBool(v))
		return nil
	}

	// objects and arrays are not cell values
	*f = ""
	return nil
}

func (f flexString) String() string { return string(f) }

// Item is one row of a stage sheet as the script serves it.
type Item struct {
	ID          flexString `json:"id"`
	Title       flexString `json:"title"`
	Type        flexString `json:"type"`
	Status      flexString `json:"status"`
	Version     flexString `json:"version"`
	Owner       flexString `json:"owner"`
	Audience    flexString `json:"audience"`
	DurationMin flexString `json:"duration_min"`
	Capacity    flexString `json:"capacity"`
	Tags        flexString `json:"tags"`
	Summary     flexString `json:"summary"`
	Objectives  flexString `json:"objectives"`
	Outline     flexString `json:"outline"`
	Materials   flexString `json:"materials"`
	Links       flexString `json:"links"`
	Assets      flexString `json:"assets"`
	Notes       flexString `json:"notes"`
	CreatedAt   flexString `json:"created_at"`
	UpdatedAt   flexString `json:"updated_at"`

	Kind          flexString `json:"kind"`
	KindOther     flexString `json:"kind_other"`
	TotalDuration flexString `json:"total_duration"`
	Location      flexString `json:"location"`
	VenueType     flexString `json:"venue_type"`
	CoreConcept   flexString `json:"core_concept"`
	MainTool      flexString `json:"main_tool"`
	SubTools      flexString `json:"sub_tools"`
	ToolUIDs      flexString `json:"tool_uids"`
	ModuleItems   flexString `json:"module_items"`
}

// Values returns the row in Headers order.
func (it Item) Values() []string {
	return []string{
		it.ID.String(), it.Title.String(), it.Type.String(), it.Status.String(),
		it.Version.String(), it.Owner.String(), it.Audience.String(),
		it.DurationMin.String(), it.Capacity.String(), it.Tags.String(),
		it.Summary.String(), it.Objectives.String(), it.Outline.String(),
		it.Materials.String(), it.Links.String(), it.Assets.String(),
		it.Notes.String(), it.CreatedAt.String(), it.UpdatedAt.String(),
		it.Kind.String(), it.KindOther.String(), it.TotalDuration.String(),
		it.Location.String(), it.VenueType.String(), it.CoreConcept.String(),
		it.MainTool.String(), it.SubTools.String(), it.ToolUIDs.String(),
		it.ModuleItems.String(),
	}
}

// FromRecord flattens a record into its sheet row.
func FromRecord(rec domain.CourseRecord) Item {
	it := Item{
		ID:            flexString(rec.ID),
		Title:         flexString(rec.Title),
		Type:          flexString(rec.Kind),
		Status:        flexString(rec.Status),
		Version:       flexString(rec.Version),
		Owner:         flexString(rec.Owner),
		Audience:      flexString(rec.Audience),
		DurationMin:   flexString(itoa(rec.DurationMinutes)),
		Capacity:      flexString(itoa(rec.Capacity)),
		Tags:          flexString(rec.Tags),
		Summary:       flexString(rec.Summary),
		Objectives:    flexString(rec.Objectives),
		Outline:       flexString(rec.Outline),
		Materials:     flexString(rec.Materials),
		Links:         flexString(rec.Links),
		Assets:        flexString(rec.Assets),
		Notes:         flexString(rec.Notes),
		CreatedAt:     flexString(formatTime(rec.CreatedAt)),
		UpdatedAt:     flexString(formatTime(rec.UpdatedAt)),
		KindOther:     flexString(rec.KindOther),
		TotalDuration: flexString(rec.TotalDuration),
		Location:      flexString(rec.Location),
		VenueType:     flexString(rec.VenueType),
		CoreConcept:   flexString(rec.CoreConcept),
		ModuleItems:   flexString(rec.ModuleItems),
	}
	if rec.Kind != "" {
		it.Kind = flexString(rec.Kind.Label())
	}

	var uids []string
	if rec.PrimaryTool != nil {
		it.MainTool = flexString(toolRef(*rec.PrimaryTool))
		uids = append(uids, rec.PrimaryTool.UID)
	}
	subs := make([]string, 0, len(rec.SecondaryTools))
	for _, t := range rec.SecondaryTools {
		subs = append(subs, toolRef(t))
		uids = append(uids, t.UID)
	}
	it.SubTools = flexString(strings.Join(subs, toolListSep))
	it.ToolUIDs = flexString(joinNonEmpty(uids, toolUIDSep))
	return it
}

// Record rebuilds a CourseRecord from a row. Tools come back with code and
// name only; callers resolve them against the catalog.
func (it Item) Record(stage domain.Stage) domain.CourseRecord {
	rec := domain.CourseRecord{
		ID:              it.ID.String(),
		Title:           it.Title.String(),
		KindOther:       it.KindOther.String(),
		Audience:        it.Audience.String(),
		DurationMinutes: atoi(it.DurationMin.String()),
		TotalDuration:   it.TotalDuration.String(),
		Capacity:        atoi(it.Capacity.String()),
		Location:        it.Location.String(),
		VenueType:       it.VenueType.String(),
		CoreConcept:     it.CoreConcept.String(),
		Summary:         it.Summary.String(),
		Objectives:      it.Objectives.String(),
		Outline:         it.Outline.String(),
		Materials:       it.Materials.String(),
		Assets:          it.Assets.String(),
		Notes:           it.Notes.String(),
		Tags:            it.Tags.String(),
		Links:           it.Links.String(),
		ModuleItems:     it.ModuleItems.String(),
		Stage:           stage,
		Status:          it.Status.String(),
		Version:         it.Version.String(),
		Owner:           it.Owner.String(),
		CreatedAt:       parseTime(it.CreatedAt.String()),
		UpdatedAt:       parseTime(it.UpdatedAt.String()),
	}

	kind := it.Kind.String()
	if strings.TrimSpace(kind) == "" {
		kind = it.Type.String()
	}
	rec.SetKind(kind)

	var tools []*domain.ToolRecord
	if p, ok := parseToolRef(it.MainTool.String()); ok {
		rec.PrimaryTool = &p
		tools = append(tools, rec.PrimaryTool)
	}
	for _, ref := range splitRefs(it.SubTools.String(), toolListSep, ",", "，") {
		if t, ok := parseToolRef(ref); ok {
			rec.SecondaryTools = append(rec.SecondaryTools, t)
		}
	}
	for i := range rec.SecondaryTools {
		tools = append(tools, &rec.SecondaryTools[i])
	}
	// tool_uids is positional only when every tool had a uid
	if uids := splitRefs(it.ToolUIDs.String(), toolUIDSep); len(uids) == len(tools) {
		for i, t := range tools {
			t.UID = uids[i]
		}
	}
	rec.NormalizeTools()
	return rec
}

func toolRef(t domain.ToolRecord) string {
	return strings.TrimSpace(t.Code) + toolSep + strings.TrimSpace(t.Name)
}

// parseToolRef reads "CODE｜Name". A bare value is taken as the code.
func parseToolRef(s string) (domain.ToolRecord, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.ToolRecord{}, false
	}
	code, name, _ := strings.Cut(s, toolSep)
	t := domain.ToolRecord{
		Code:   strings.TrimSpace(code),
		Name:   strings.TrimSpace(name),
		Status: domain.ToolStatusActive,
	}
	if t.Code == "" && t.Name == "" {
		return domain.ToolRecord{}, false
	}
	return t, true
}

func splitRefs(s string, seps ...string) []string {
	for _, sep := range seps[1:] {
		s = strings.ReplaceAll(s, sep, seps[0])
	}
	var out []string
	for _, part := range strings.Split(s, seps[0]) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinNonEmpty(parts []string, sep string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// atoi tolerates the sheet's number formatting ("90", "90.0", " 90 ").
func atoi(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampFmt)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
