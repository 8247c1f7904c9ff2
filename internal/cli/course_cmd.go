package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"course-workbench/internal/concurrency"
	"course-workbench/internal/domain"
	"course-workbench/internal/editor"
	stagesync "course-workbench/internal/sync"
)

func newCourseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "List, edit and promote course records",
	}
	cmd.AddCommand(
		newCourseListCmd(app),
		newCourseGetCmd(app),
		newCourseSaveCmd(app),
		newCoursePromoteCmd(app),
		newCourseDiffCmd(app),
		newCourseDeleteCmd(app),
	)
	return cmd
}

func newCourseListCmd(app *App) *cobra.Command {
	var (
		query  string
		asJSON bool
		fields string
	)
	cmd := &cobra.Command{
		Use:   "list <stage>",
		Short: "List records in a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			if err := app.ensure(); err != nil {
				return err
			}
			res, err := app.Engine.List(cmd.Context(), stage, query)
			if err != nil {
				return err
			}
			if res.Stale {
				warnLine(cmd.ErrOrStderr(), "course API unreachable (%v); showing cached %s list", res.Cause, stage)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res.Records, fields)
			}
			printRecords(out, res.Records)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Filter by id, title, tags or summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().StringVar(&fields, "fields", "", "Comma-separated JSON keys to keep (with --json)")
	return cmd
}

func printRecords(w io.Writer, recs []domain.CourseRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tKIND\tSTATUS\tUPDATED")
	for _, r := range recs {
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.Kind, r.Status, updated)
	}
	_ = tw.Flush()
}

func newCourseGetCmd(app *App) *cobra.Command {
	var fields string
	cmd := &cobra.Command{
		Use:   "get <stage> <id>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			if err := app.ensureSheet(); err != nil {
				return err
			}
			rec, err := app.Engine.Get(cmd.Context(), stage, args[1])
			if err != nil {
				return err
			}
			return writeOneJSON(cmd.OutOrStdout(), rec, fields)
		},
	}
	cmd.Flags().StringVar(&fields, "fields", "", "Comma-separated JSON keys to keep")
	return cmd
}

type saveFlags struct {
	id        string
	file      string
	title     string
	kind      string
	summary   string
	venue     string
	audience  string
	links     string
	duration  int
	primary   string
	secondary []string
	asJSON    bool
}

func newCourseSaveCmd(app *App) *cobra.Command {
	var f saveFlags
	cmd := &cobra.Command{
		Use:   "save <stage>",
		Short: "Create or update a record in a stage",
		Long: `Create or update a record. Fields come from --file (a JSON record, "-" for
stdin) and are overridden by the individual flags. With --id the stored record
is loaded first and edited in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			if err := app.ensureSheet(); err != nil {
				return err
			}
			saved, err := saveRecord(cmd, app, stage, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if f.asJSON {
				return writeOneJSON(out, saved, "")
			}
			okLine(out, "saved %s to %s (%s)", saved.ID, stage, saved.Status)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.id, "id", "", "Edit the stored record with this id")
	fl.StringVarP(&f.file, "file", "f", "", "JSON record to save (- for stdin)")
	fl.StringVar(&f.title, "title", "", "Title")
	fl.StringVar(&f.kind, "kind", "", "Kind (talk, single_class, single_event, training, module; anything else is kept as other)")
	fl.StringVar(&f.summary, "summary", "", "Summary")
	fl.StringVar(&f.venue, "venue", "", "Venue type")
	fl.StringVar(&f.audience, "audience", "", "Audience")
	fl.StringVar(&f.links, "links", "", "Manual links; tool links are added on save")
	fl.IntVar(&f.duration, "duration", 0, "Session minutes")
	fl.StringVar(&f.primary, "primary", "", "Primary tool code")
	fl.StringSliceVar(&f.secondary, "secondary", nil, "Secondary tool codes (replaces the current set)")
	fl.BoolVar(&f.asJSON, "json", false, "Print the saved record as JSON")
	return cmd
}

func saveRecord(cmd *cobra.Command, app *App, stage domain.Stage, f saveFlags) (domain.CourseRecord, error) {
	ctx := cmd.Context()

	var fromFile *domain.CourseRecord
	if f.file != "" {
		rec, err := readRecord(cmd.InOrStdin(), f.file)
		if err != nil {
			return domain.CourseRecord{}, err
		}
		fromFile = &rec
	}

	needTools := f.primary != "" || len(f.secondary) > 0 ||
		(fromFile != nil && (fromFile.PrimaryTool != nil || len(fromFile.SecondaryTools) > 0))
	cat := app.Syncer.Cached(ctx)
	if needTools && !cat.Usable() {
		var err error
		if cat, err = app.Syncer.Sync(ctx); err != nil {
			return domain.CourseRecord{}, err
		}
	}

	s := editor.NewSession(app.Engine, cat, editor.WithLogger(app.Logger.Named("editor")))
	if f.id != "" {
		if _, err := s.Load(ctx, stage, f.id); err != nil {
			return domain.CourseRecord{}, err
		}
	} else if err := s.Start(stage); err != nil {
		return domain.CourseRecord{}, err
	}

	if fromFile != nil {
		s.Edit(func(r *domain.CourseRecord) { *r = *fromFile })
		if err := selectTools(s, fromFile.PrimaryTool, fromFile.SecondaryTools); err != nil {
			return domain.CourseRecord{}, err
		}
	}

	flags := cmd.Flags()
	s.Edit(func(r *domain.CourseRecord) {
		if flags.Changed("title") {
			r.Title = f.title
		}
		if flags.Changed("kind") {
			r.SetKind(f.kind)
		}
		if flags.Changed("summary") {
			r.Summary = f.summary
		}
		if flags.Changed("venue") {
			r.VenueType = f.venue
		}
		if flags.Changed("audience") {
			r.Audience = f.audience
		}
		if flags.Changed("links") {
			r.Links = f.links
		}
		if flags.Changed("duration") {
			r.DurationMinutes = f.duration
		}
	})

	if f.primary != "" {
		if err := s.SetPrimary(f.primary); err != nil {
			return domain.CourseRecord{}, err
		}
	}
	if flags.Changed("secondary") {
		for _, t := range s.Selection().Secondary {
			s.RemoveSecondary(toolRef(t))
		}
		for _, code := range trimAll(f.secondary) {
			if _, err := s.AddSecondary(code); err != nil {
				return domain.CourseRecord{}, err
			}
		}
	}

	return s.Save(ctx)
}

func selectTools(s *editor.Session, primary *domain.ToolRecord, secondary []domain.ToolRecord) error {
	if primary != nil {
		if err := s.SetPrimary(toolRef(*primary)); err != nil {
			return err
		}
	}
	for _, t := range secondary {
		if _, err := s.AddSecondary(toolRef(t)); err != nil {
			return err
		}
	}
	return nil
}

func toolRef(t domain.ToolRecord) string {
	if t.Code != "" {
		return t.Code
	}
	return t.Name
}

func readRecord(stdin io.Reader, path string) (domain.CourseRecord, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.CourseRecord{}, fmt.Errorf("read record: %w", err)
	}
	var rec domain.CourseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.CourseRecord{}, fmt.Errorf("parse record %s: %w", path, err)
	}
	return rec, nil
}

func newCoursePromoteCmd(app *App) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "promote <from> <to> <id>...",
		Short: "Copy records forward to a later stage",
		Long:  "Copy records forward to a later stage. The source copy stays where it is; an existing record with the same id in the target stage is replaced.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			to, err := domain.ParseStage(args[1])
			if err != nil {
				return err
			}
			if err := app.ensureSheet(); err != nil {
				return err
			}
			ids := trimAll(args[2:])
			return promoteAll(cmd.Context(), cmd.OutOrStdout(), app, from, to, ids, workers)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "Promotions in flight at once")
	return cmd
}

func promoteAll(ctx context.Context, out io.Writer, app *App, from, to domain.Stage, ids []string, workers int) error {
	opts := concurrency.DefaultOptions()
	opts.MaxWorkers = workers

	errs := concurrency.ForEach(ctx, ids, opts, func(ctx context.Context, _ int, id string) error {
		return app.Engine.Promote(ctx, id, from, to)
	})
	failed := make(map[int]error, len(errs))
	for _, err := range errs {
		var ie *concurrency.ItemError
		if errors.As(err, &ie) {
			failed[ie.Index] = ie.Err
		}
	}
	for i, id := range ids {
		if err, ok := failed[i]; ok {
			warnLine(out, "%s: %v", id, err)
			continue
		}
		okLine(out, "%s promoted %s -> %s", id, from, to)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d promotions failed", len(errs), len(ids))
	}
	return nil
}

func newCourseDiffCmd(app *App) *cobra.Command {
	var (
		promote bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "diff <from> [to]",
		Short: "Show which records a promotion pass would create or update",
		Long:  "Show which records a promotion pass would create or update. The target defaults to the stage after from.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			to, ok := from.Next()
			if len(args) == 2 {
				if to, err = domain.ParseStage(args[1]); err != nil {
					return err
				}
			} else if !ok {
				return &domain.ValidationError{Field: "stage", Reason: fmt.Sprintf("%s has no later stage", from)}
			}
			if err := app.ensureSheet(); err != nil {
				return err
			}
			ctx := cmd.Context()
			plan, err := stagePlan(ctx, app, from, to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printPlan(out, plan)
			if !promote || plan.Empty() {
				return nil
			}
			return promoteAll(ctx, out, app, from, to, plan.Pending(), workers)
		},
	}
	cmd.Flags().BoolVar(&promote, "promote", false, "Promote every new or changed record")
	cmd.Flags().IntVar(&workers, "workers", 4, "Promotions in flight at once")
	return cmd
}

// stagePlan refuses to work from cached lists: a stale listing would make
// the plan lie.
func stagePlan(ctx context.Context, app *App, from, to domain.Stage) (stagesync.Plan, error) {
	lists := make(map[domain.Stage][]domain.CourseRecord, 2)
	for _, st := range []domain.Stage{from, to} {
		res, err := app.Engine.List(ctx, st, "")
		if err != nil {
			return stagesync.Plan{}, err
		}
		if res.Stale {
			return stagesync.Plan{}, res.Cause
		}
		lists[st] = res.Records
	}
	return stagesync.Compare(from, to, lists[from], lists[to]), nil
}

func printPlan(w io.Writer, p stagesync.Plan) {
	section := func(title string, recs []domain.CourseRecord) {
		fmt.Fprintf(w, "%s (%d)\n", title, len(recs))
		for _, r := range recs {
			fmt.Fprintf(w, "  %s  %s\n", r.ID, r.Title)
		}
	}
	section("new in "+string(p.From), p.Create)
	section("changed since last promotion", p.Update)
	section("only in "+string(p.To), p.Orphan)
}

func newCourseDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stage> <id>",
		Short: "Delete a record from one stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(args[0])
			if err != nil {
				return err
			}
			if err := app.ensureSheet(); err != nil {
				return err
			}
			if err := app.Engine.Delete(cmd.Context(), stage, args[1]); err != nil {
				return err
			}
			okLine(cmd.OutOrStdout(), "deleted %s from %s", args[1], stage)
			return nil
		},
	}
}
