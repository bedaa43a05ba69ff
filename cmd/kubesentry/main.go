package main

import (
	"github.com/ppiankov/kubesentry/internal/cli"
	"github.com/ppiankov/kubesentry/internal/util"
)

func main() {
	if err := cli.Execute(); err != nil {
		util.ExitWithError(util.CodeFor(err), "Error: %v", err)
	}
}
