package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-workbench/internal/config"
	"course-workbench/internal/domain"
	"course-workbench/internal/sheetfake"
)

const toolsPayload = `{"tools":[
 {"toolCode":"EQ-01","name":"Five Senses","link":"https://tools/eq01","category":"emotion"},
 {"toolCode":"EQ-02","name":"Mood Meter","category":"emotion"},
 {"toolCode":"MK-01","name":"Maker Kit","category":"craft","status":"paused"}
]}`

// testApp wires an App against a fresh sheet emulator and a temp cache.
func testApp(t *testing.T) (*App, *sheetfake.Server) {
	t.Helper()
	var mu sync.Mutex
	n := 0
	fake := sheetfake.New(sheetfake.WithIDs(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("C%d", n)
	}))
	fake.SetTools(toolsPayload)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.CourseAPI = srv.URL + sheetfake.Path
	cfg.ToolsAPI = cfg.CourseAPI
	cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")
	cfg.HTTPTimeout = 5 * time.Second

	app := &App{Now: func() time.Time { return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC) }}
	require.NoError(t, app.Wire(cfg, nil))
	t.Cleanup(func() { _ = app.Close() })
	return app, fake
}

// executeCmd runs a cobra command and captures stdout/stderr.
func executeCmd(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestPingCmd(t *testing.T) {
	app, fake := testApp(t)
	out, err := executeCmd(t, app, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "course API reachable")
	assert.Equal(t, 1, fake.Calls("ping"))
}

func TestCatalogCmds(t *testing.T) {
	app, _ := testApp(t)

	out, err := executeCmd(t, app, "catalog", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 3 tools")

	out, err = executeCmd(t, app, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "EQ-01｜Five Senses  [emotion]")
	assert.NotContains(t, out, "MK-01", "inactive tools are not listed")

	out, err = executeCmd(t, app, "catalog", "list", "--json", "--fields", "code", "-q", "mood")
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []map[string]any{{"code": "EQ-02"}}, got)

	out, err = executeCmd(t, app, "catalog", "list", "--categories")
	require.NoError(t, err)
	assert.Equal(t, "craft\nemotion\n", out)
}

func TestCourseSaveListPromote(t *testing.T) {
	app, _ := testApp(t)

	_, err := executeCmd(t, app, "course", "save", "idea", "--title", "No tool")
	assert.True(t, domain.IsValidation(err), "primary tool is required: %v", err)

	out, err := executeCmd(t, app, "course", "save", "idea",
		"--title", "Feelings lab", "--kind", "talk", "--venue", "indoor",
		"--primary", "EQ-01", "--secondary", "EQ-02")
	require.NoError(t, err)
	assert.Contains(t, out, "saved C1 to idea (idea)")

	out, err = executeCmd(t, app, "course", "get", "idea", "C1", "--fields", "id,tags,links,summary")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "talk indoor EQ-01", rec["tags"])
	assert.Equal(t, "https://tools/eq01", rec["links"])
	assert.Equal(t, "Idea: Feelings lab", rec["summary"])

	// edit in place keeps the id and the stored tools
	out, err = executeCmd(t, app, "course", "save", "idea", "--id", "C1", "--summary", "Hands on")
	require.NoError(t, err)
	assert.Contains(t, out, "saved C1 to idea")

	out, err = executeCmd(t, app, "course", "list", "idea")
	require.NoError(t, err)
	assert.Contains(t, out, "Feelings lab")
	assert.Equal(t, 2, strings.Count(out, "\n"), "header plus one row")

	out, err = executeCmd(t, app, "course", "promote", "idea", "final", "C1")
	require.NoError(t, err)
	assert.Contains(t, out, "C1 promoted idea -> final")

	out, err = executeCmd(t, app, "course", "get", "final", "C1", "--fields", "status,summary")
	require.NoError(t, err)
	var final map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &final))
	assert.Equal(t, map[string]any{"status": "ready", "summary": "Hands on"}, final)

	_, err = executeCmd(t, app, "course", "get", "idea", "C1")
	assert.NoError(t, err, "source stays after promotion")
}

func TestCoursePromoteReportsEachID(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageDraft, domain.CourseRecord{ID: "D1", Title: "Ready one", Status: "draft"})

	out, err := executeCmd(t, app, "course", "promote", "draft", "final", "D1", "D404")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 promotions failed")
	assert.Contains(t, out, "D1 promoted draft -> final")
	assert.Contains(t, out, "D404: ")
	assert.Contains(t, out, "record not found")

	out, err = executeCmd(t, app, "course", "promote", "final", "idea", "D1")
	assert.Error(t, err, "final is terminal")
	assert.Contains(t, out, "D1: validation")
}

func TestCourseSaveFromFile(t *testing.T) {
	app, _ := testApp(t)
	path := filepath.Join(t.TempDir(), "rec.json")
	body := `{"title":"From file","kind":"training","primaryTool":{"code":"EQ-02","name":"x"},"durationMinutes":45}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := executeCmd(t, app, "course", "save", "draft", "--file", path, "--title", "Flag wins", "--json")
	require.NoError(t, err)
	var rec domain.CourseRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Flag wins", rec.Title)
	assert.Equal(t, 45, rec.DurationMinutes)
	require.NotNil(t, rec.PrimaryTool)
	assert.Equal(t, "Mood Meter", rec.PrimaryTool.Name, "tool resolved against the catalog")
	assert.Equal(t, domain.StageDraft, rec.Stage)
}

func TestCourseListFallsBackToCache(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "F1", Title: "Cached title"})

	_, err := executeCmd(t, app, "course", "list", "final")
	require.NoError(t, err)

	fake.SetDown(true)
	out, err := executeCmd(t, app, "course", "list", "final")
	require.NoError(t, err)
	assert.Contains(t, out, "showing cached final list")
	assert.Contains(t, out, "Cached title")

	_, err = executeCmd(t, app, "course", "delete", "final", "F1")
	assert.True(t, domain.IsNetwork(err))
}

func TestCourseDelete(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageIdea, domain.CourseRecord{ID: "I1", Title: "Gone soon"})

	out, err := executeCmd(t, app, "course", "delete", "idea", "I1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted I1 from idea")

	_, err = executeCmd(t, app, "course", "get", "idea", "I1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBadStage(t *testing.T) {
	app, _ := testApp(t)
	_, err := executeCmd(t, app, "course", "list", "someday")
	assert.True(t, domain.IsValidation(err))
}

func TestModuleCmds(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "S1", Title: "A", Kind: domain.KindTalk,
		PrimaryTool: &domain.ToolRecord{Code: "EQ-01", Name: "Five Senses"}})
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "S2", Title: "B", Kind: domain.KindTalk})
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "M1", Title: "Old module", Kind: domain.KindModule})

	out, err := executeCmd(t, app, "module", "candidates", "--json", "--fields", "id")
	require.NoError(t, err)
	var ids []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.ElementsMatch(t, []map[string]any{{"id": "S1"}, {"id": "S2"}}, ids)

	_, err = executeCmd(t, app, "module", "compose", "--title", "Solo", "S1")
	assert.Error(t, err, "one source is not enough")

	root := NewRootCmd(app)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs([]string{"module", "compose", "--title", "Pair", "--duration", "120", "--save", "S1", "S2"})
	require.NoError(t, root.Execute())

	var mod domain.CourseRecord
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &mod))
	assert.Equal(t, "01 S1｜A\n02 S2｜B", mod.Outline)
	assert.Equal(t, domain.KindModule, mod.Kind)
	assert.Equal(t, "EQ-01", mod.Tags)
	assert.NotEmpty(t, mod.ID)
	assert.Contains(t, stderr.String(), "saved module "+mod.ID)
}

func TestExportCmds(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "F1", Title: "Export me", Notes: "line one\nline two"})

	path := filepath.Join(t.TempDir(), "out.tsv")
	out, err := executeCmd(t, app, "export", "tsv", "final", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 1 records to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "line one / line two")

	out, err = executeCmd(t, app, "export", "prompt", "final", "F1")
	require.NoError(t, err)
	assert.Contains(t, out, "- Topic: Export me")

	out, err = executeCmd(t, app, "export", "prompt", "final", "F1", "--proposal")
	require.NoError(t, err)
	assert.Contains(t, out, "[Proposal] Export me")

	_, err = executeCmd(t, app, "export", "tsv", "final", "--out", path, "--sftp")
	assert.ErrorContains(t, err, "sftp upload")
}

func TestCourseDiffPromotesPending(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageDraft, domain.CourseRecord{ID: "D1", Title: "Brand new"})
	fake.Seed(domain.StageDraft, domain.CourseRecord{ID: "D2", Title: "Reworked", Summary: "v2"})
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "D2", Title: "Reworked", Summary: "v1"})
	fake.Seed(domain.StageFinal, domain.CourseRecord{ID: "F7", Title: "Final only"})

	out, err := executeCmd(t, app, "course", "diff", "draft", "final", "--promote")
	require.NoError(t, err)
	assert.Contains(t, out, "new in draft (1)\n  D1  Brand new")
	assert.Contains(t, out, "changed since last promotion (1)\n  D2  Reworked")
	assert.Contains(t, out, "only in final (1)\n  F7  Final only")
	assert.Contains(t, out, "D1 promoted draft -> final")
	assert.Contains(t, out, "D2 promoted draft -> final")

	out, err = executeCmd(t, app, "course", "diff", "draft", "final")
	require.NoError(t, err)
	assert.Contains(t, out, "new in draft (0)")
	assert.Contains(t, out, "changed since last promotion (0)")

	fake.SetDown(true)
	_, err = executeCmd(t, app, "course", "diff", "draft", "final")
	assert.True(t, domain.IsNetwork(err), "stale lists are refused: %v", err)
}

func TestCourseSaveKeepsFreeTextKind(t *testing.T) {
	app, _ := testApp(t)

	_, err := executeCmd(t, app, "course", "save", "idea",
		"--title", "Senses walk", "--kind", "lecture", "--venue", "indoor", "--primary", "EQ-01")
	require.NoError(t, err)

	out, err := executeCmd(t, app, "course", "get", "idea", "C1", "--fields", "kind,kindOther,tags")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, map[string]any{"kind": "other", "kindOther": "lecture", "tags": "lecture indoor EQ-01"}, rec)

	// a later edit re-derives the same tags
	_, err = executeCmd(t, app, "course", "save", "idea", "--id", "C1", "--summary", "Outdoors next time")
	require.NoError(t, err)
	out, err = executeCmd(t, app, "course", "get", "idea", "C1", "--fields", "kindOther,tags")
	require.NoError(t, err)
	var again map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, map[string]any{"kindOther": "lecture", "tags": "lecture indoor EQ-01"}, again)
}

func TestCourseDiffDefaultsToNextStage(t *testing.T) {
	app, fake := testApp(t)
	fake.Seed(domain.StageIdea, domain.CourseRecord{ID: "I1", Title: "Seed"})

	out, err := executeCmd(t, app, "course", "diff", "idea")
	require.NoError(t, err)
	assert.Contains(t, out, "new in idea (1)\n  I1  Seed")
	assert.Contains(t, out, "only in draft (0)")

	_, err = executeCmd(t, app, "course", "diff", "final")
	assert.True(t, domain.IsValidation(err), "final has no later stage: %v", err)
}

func TestSheetCommandsNeedEndpoint(t *testing.T) {
	cfg := config.Defaults()
	cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")
	app := &App{}
	require.NoError(t, app.Wire(cfg, nil))
	t.Cleanup(func() { _ = app.Close() })

	_, err := executeCmd(t, app, "ping")
	assert.ErrorIs(t, err, errNoSheet)

	_, err = executeCmd(t, app, "course", "save", "idea", "--title", "x")
	assert.ErrorIs(t, err, errNoSheet)

	out, err := executeCmd(t, app, "cache", "status")
	require.NoError(t, err, "cache commands work offline")
	assert.Contains(t, out, "not cached")
}

func TestCacheStatusAndClear(t *testing.T) {
	app, _ := testApp(t)

	_, err := executeCmd(t, app, "catalog", "sync")
	require.NoError(t, err)
	_, err = executeCmd(t, app, "course", "list", "idea")
	require.NoError(t, err)

	out, err := executeCmd(t, app, "cache", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "3 tools, cached")
	assert.Contains(t, out, "idea (發想)")
	assert.Contains(t, out, "0 records, cached")
	assert.Regexp(t, `draft \(草稿\)\s+not cached`, out)

	out, err = executeCmd(t, app, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")

	out, err = executeCmd(t, app, "cache", "status")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, "not cached"))
}
