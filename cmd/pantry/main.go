package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/pantryclient/internal/client/cli"
	"github.com/dmitrijs2005/pantryclient/internal/client/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := cli.NewRootCmd(cfg, os.Stdin).Execute(); err != nil {
		os.Exit(1)
	}
}
