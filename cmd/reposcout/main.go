package main

import (
	"os"

	"github.com/cloo-solutions/reposcout/internal/cli"
	"github.com/cloo-solutions/reposcout/internal/cli/client"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(client.NewRootCmd(version), os.Args[1:], os.Stdout, os.Stderr))
}
