package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:          "ticket-service",
		Short:        "Helpdesk ticket lifecycle service",
		SilenceUsage: true,
		RunE:         runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the ticket-service version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
)

func main() {
	rootCmd.AddCommand(versionCmd, serveCmd, migrateCmd, auditCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
