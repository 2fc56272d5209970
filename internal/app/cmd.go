package app

import (
	"io"

	"github.com/urfave/cli/v2"
)

// NewCLI はpostpilotのサブコマンドを定義したcli.Appを生成する。
// サブコマンドを省略した場合はserveとして起動する。
func NewCLI(w io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "postpilot"
	app.Usage = "Reddit publishing and engagement sync service"
	app.Writer = w
	app.ErrWriter = w
	app.HideVersion = true
	app.Action = func(c *cli.Context) error {
		return runServe(c.Context, w)
	}
	app.Commands = []*cli.Command{
		{
			Name:        "serve",
			Usage:       "Start the API server",
			Category:    "Server",
			Description: `Serves the HTTP API (login, Reddit linking, publishing) plus /health and /metrics.`,
			Action: func(c *cli.Context) error {
				return runServe(c.Context, w)
			},
		},
		{
			Name:        "worker",
			Usage:       "Start the reconcile worker",
			Category:    "Worker",
			Description: `Runs the engagement reconcile scheduler and the revocation cleanup job.`,
			Action: func(c *cli.Context) error {
				return runWorker(c.Context, w)
			},
		},
		{
			Name:     "migrate",
			Usage:    "Manage the database schema",
			Category: "Database",
			Action: func(c *cli.Context) error {
				return runMigrateUp(w)
			},
			Subcommands: []*cli.Command{
				{
					Name:  "up",
					Usage: "Apply all pending migrations",
					Action: func(c *cli.Context) error {
						return runMigrateUp(w)
					},
				},
				{
					Name:  "down",
					Usage: "Roll back migrations",
					Flags: []cli.Flag{
						&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
					},
					Action: func(c *cli.Context) error {
						return runMigrateDown(w, c.Int("steps"))
					},
				},
				{
					Name:  "version",
					Usage: "Print the current schema version",
					Action: func(c *cli.Context) error {
						return runMigrateVersion(w)
					},
				},
			},
		},
		{
			// distroless環境でのDockerヘルスチェック用。設定の読み込みは行わない。
			Name:     "healthcheck",
			Usage:    "Probe the local /health endpoint",
			Category: "Server",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "port", Value: "8080", EnvVars: []string{"SERVER_PORT"}},
			},
			Action: func(c *cli.Context) error {
				return runHealthcheck(c.Context, "http://localhost:"+c.String("port")+"/health")
			},
		},
	}
	return app
}
