package domain

import "strings"

// ToolRecord is the canonical catalog entry. Every catalog payload shape the
// remote API emits is normalized into this type before anything else sees it.
type ToolRecord struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	Link            string `json:"link,omitempty"`
	Category        string `json:"category,omitempty"`
	CoreDescription string `json:"coreDescription,omitempty"`
	PainPoints      string `json:"painPoints,omitempty"`
	Tips            string `json:"tips,omitempty"`
	Status          string `json:"status"`
	UID             string `json:"uid,omitempty"`
}

const ToolStatusActive = "active"

// Key returns the identity of the tool: the trimmed code, or the trimmed name
// when the code is empty. The two namespaces never collide.
func (t ToolRecord) Key() string {
	if c := strings.TrimSpace(t.Code); c != "" {
		return "code:" + c
	}
	return "name:" + strings.TrimSpace(t.Name)
}

// SameTool reports whether a and b identify the same catalog tool.
func SameTool(a, b ToolRecord) bool {
	return a.Key() == b.Key()
}

func (t ToolRecord) IsActive() bool {
	s := strings.TrimSpace(t.Status)
	return s == "" || strings.EqualFold(s, ToolStatusActive)
}

// Label renders "CODE｜Name", the form the course sheet stores in main_tool / sub_tools.
func (t ToolRecord) Label() string {
	return strings.TrimSpace(t.Code) + "｜" + strings.TrimSpace(t.Name)
}
