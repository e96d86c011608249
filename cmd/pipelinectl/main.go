package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"candidate-pipeline/internal/backend"
	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Work the candidate pipeline from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "pipeline API base URL")
	flags.String("workspace", "default", "workspace id sent as X-Workspace-ID")
	flags.String("role", string(models.RoleRecruiter), "acting role: admin, recruiter or viewer")
	flags.Duration("timeout", 30*time.Second, "HTTP timeout")
	flags.Int64("job", 0, "restrict to one job id")
	_ = v.BindPFlags(flags)

	app := &cli{v: v}
	root.AddCommand(
		app.boardCmd(),
		app.moveCmd(),
		app.bulkCmd(),
		app.exportCmd(),
		app.stagesCmd(),
		app.eventsCmd(),
	)
	return root
}

type cli struct {
	v      *viper.Viper
	client *backend.Client
}

func (c *cli) backend() *backend.Client {
	if c.client == nil {
		c.client = backend.New(c.v.GetString("api-url"), c.v.GetString("workspace"), c.v.GetDuration("timeout")).
			WithRole(models.ParseRole(c.v.GetString("role")))
	}
	return c.client
}

// session opens a loaded workspace view.
func (c *cli) session(ctx context.Context, saver pipeline.FileSaver) (*pipeline.Session, error) {
	s := pipeline.NewSession(c.backend(), pipeline.Options{
		Role:  models.ParseRole(c.v.GetString("role")),
		Saver: saver,
	})
	if err := s.LoadStages(ctx); err != nil {
		return nil, err
	}
	if err := s.Reload(ctx, models.Query{JobID: c.v.GetInt64("job")}); err != nil {
		return nil, err
	}
	return s, nil
}

func printNotice(s *pipeline.Session) {
	p, ok := s.Pending()
	if !ok || p.Kind != models.PendingNotice {
		return
	}
	fmt.Printf("%s: %s\n", p.Title, p.Message)
	if p.URL != "" {
		fmt.Println(p.URL)
	}
}
