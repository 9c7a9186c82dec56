package lister

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "lister",
		Short: "Manages listing runs against remote forges and package indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("welcome to the originwatch lister!")
			return nil
		},
	}
	cmd.AddCommand(newRunCommand())
	return cmd
}
