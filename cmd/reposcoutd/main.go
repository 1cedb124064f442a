package main

import (
	"os"

	"github.com/cloo-solutions/reposcout/internal/cli"
	"github.com/cloo-solutions/reposcout/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "reposcoutd",
		Short: "reposcout daemon and admin CLI",
		Long:  "reposcout daemon for running the API server, migrating the database and resuming stalled searches",
	}
	cli.AddHelpJSONFlag(root)
	root.AddCommand(admin.ServeCmd(), admin.MigrateCmd(), admin.ConfigCmd(), admin.ResumeCmd())

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	os.Exit(cli.Execute(root, args, os.Stdout, os.Stderr))
}
