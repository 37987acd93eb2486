package main

import (
	"os"

	"github.com/MrBE4R/gitlab-ldap-sync/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewSchedulerCommand()))
}
