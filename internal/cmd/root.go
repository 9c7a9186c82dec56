package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	listercmd "github.com/originwatch/originwatch/internal/cmd/lister"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "originwatch",
		Short: "Enumerates software origins hosted on forges and package indexes",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Welcome to originwatch!")
		},
	}

	cmd.AddCommand(listercmd.NewCommand())

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
