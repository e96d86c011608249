package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"candidate-pipeline/internal/backend"
	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/pipeline"
)

func (c *cli) boardCmd() *cobra.Command {
	var (
		f         models.FilterState
		minRating int
		minMatch  int
		resume    string
		revealed  bool
	)
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the kanban board after filtering",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("min-rating") {
				f.Rating = &minRating
			}
			if cmd.Flags().Changed("min-match") {
				f.JobMatchMin = &minMatch
			}
			f.HasResume = models.ResumeFilter(resume)
			f.OnlyRevealedContacts = revealed
			s.SetFilter(f)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Stage", "ID", "Name", "Priority", "Rating", "Tags"})
			table.SetAutoMergeCells(true)
			for _, col := range s.Board() {
				label := fmt.Sprintf("%s (%d)", col.Stage.Name, len(col.Applications))
				if len(col.Applications) == 0 {
					table.Append([]string{label, "", "", "", "", ""})
					continue
				}
				for _, a := range col.Applications {
					table.Append([]string{
						label,
						strconv.FormatInt(a.ID, 10),
						a.Applicant.FullName,
						string(a.Priority),
						strconv.Itoa(a.Rating),
						strings.Join(a.Tags, ", "),
					})
				}
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "free-text search")
	cmd.Flags().StringVar(&f.Status, "status", "", "only this stage id")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "only this priority")
	cmd.Flags().IntVar(&minRating, "min-rating", 0, "minimum rating 0-5")
	cmd.Flags().IntVar(&minMatch, "min-match", 0, "minimum job match score 0-100")
	cmd.Flags().StringSliceVar(&f.Tags, "tags", nil, "required tags")
	cmd.Flags().StringVar(&resume, "resume", string(models.ResumeAny), "any, with or without")
	cmd.Flags().BoolVar(&revealed, "revealed-only", false, "only applicants whose contact details are visible")
	return cmd
}

func (c *cli) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <application-id> <stage>",
		Short: "Move one application to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("application id %q: %w", args[0], err)
			}
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			app, err := s.Move(cmd.Context(), id, args[1])
			if backend.IsConflict(err) {
				return fmt.Errorf("application %d changed on the server, run board and retry", id)
			}
			if err != nil {
				return err
			}
			fmt.Printf("application %d is now in %s (version %d)\n", app.ID, app.Stage, app.Version)
			return nil
		},
	}
}

func (c *cli) bulkCmd() *cobra.Command {
	var ids []int64
	cmd := &cobra.Command{
		Use:   "bulk <move|note|priority|tag> <argument>",
		Short: "Apply one action to many applications",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := pipeline.ParseBulkAction(args[0], args[1])
			if err != nil {
				return err
			}
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			n, err := s.BulkTargets(cmd.Context(), ids, action)
			if err != nil {
				printNotice(s)
				return err
			}
			fmt.Printf("updated %d applications\n", n)
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "application ids")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		ids    []int64
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export applications as csv, xlsx, pdf or a shared sheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context(), pipeline.DirSaver{Dir: out})
			if err != nil {
				return err
			}
			for _, id := range ids {
				s.ToggleSelect(id, true)
			}
			if dropped := missingIDs(ids, s.Selected()); len(dropped) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping ids not on the loaded board: %s\n", strings.Join(dropped, ", "))
			}
			res, err := s.Export(cmd.Context(), models.ExportFormat(format))
			if err != nil {
				printNotice(s)
				return err
			}
			if res.SheetURL != "" {
				printNotice(s)
				return nil
			}
			fmt.Printf("saved %s\n", res.Path)
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "application ids")
	cmd.Flags().StringVar(&format, "format", string(models.FormatCSV), "csv, xlsx, pdf or sheet")
	cmd.Flags().StringVar(&out, "out", ".", "directory for downloaded files")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func (c *cli) stagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List and edit pipeline stages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			printStages(s)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Append a new stage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			st, err := s.AddStage(cmd.Context())
			if err != nil {
				printNotice(s)
				return err
			}
			printNotice(s)
			fmt.Printf("added stage %s\n", st.ID)
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename <stage-id> <name>",
		Short: "Rename a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			name := args[1]
			if _, err := s.UpdateStage(cmd.Context(), args[0], models.StagePatch{Name: &name}); err != nil {
				printNotice(s)
				return err
			}
			printNotice(s)
			printStages(s)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete <stage-id>",
		Short: "Delete an empty, unlocked stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if err := s.DeleteStage(cmd.Context(), args[0]); err != nil {
				printNotice(s)
				return err
			}
			printNotice(s)
			printStages(s)
			return nil
		},
	}

	reorder := &cobra.Command{
		Use:   "reorder <stage-id>...",
		Short: "Set the column order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.session(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if err := s.ReorderStages(cmd.Context(), args); err != nil {
				printNotice(s)
				return err
			}
			printNotice(s)
			printStages(s)
			return nil
		},
	}

	cmd.AddCommand(add, rename, remove, reorder)
	return cmd
}

func (c *cli) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <application-id>",
		Short: "Show the audit trail of one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("application id %q: %w", args[0], err)
			}
			evs, err := c.backend().Events(cmd.Context(), id)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"When", "Event", "Detail"})
			for _, ev := range evs {
				table.Append([]string{ev.Recorded.Format("2006-01-02 15:04:05"), ev.Event, ev.Detail})
			}
			table.Render()
			return nil
		},
	}
}

// missingIDs lists the requested ids that did not make it into the selection.
func missingIDs(requested, selected []int64) []string {
	have := make(map[int64]bool, len(selected))
	for _, id := range selected {
		have[id] = true
	}
	var out []string
	for _, id := range requested {
		if !have[id] {
			out = append(out, strconv.FormatInt(id, 10))
			have[id] = true
		}
	}
	return out
}

func printStages(s *pipeline.Session) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Color", "Locked", "Applications"})
	for _, st := range s.Stages().Stages() {
		table.Append([]string{
			st.ID,
			st.Name,
			st.ColorTag,
			strconv.FormatBool(st.IsLocked),
			strconv.Itoa(s.Records().CountInStage(st.ID)),
		})
	}
	table.Render()
}
