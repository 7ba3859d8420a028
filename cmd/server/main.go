// Command server runs the scheduled Mercury sync and its HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/mercury-odoo-sync/internal/cli"
	"github.com/eshaffer321/mercury-odoo-sync/internal/infrastructure/config"
)

func main() {
	flags, err := cli.ParseServeFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	gin.SetMode(gin.ReleaseMode)

	cfg := config.LoadOrEnvWithPath(flags.Config)
	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
