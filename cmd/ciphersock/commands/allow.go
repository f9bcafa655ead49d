package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func allowCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "allow [host|ip|cidr]",
		Short: "Add to, remove from or list the source-address allow-list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if remove {
					if err := appWire.AllowList.RemoveAllowed(args[0]); err != nil {
						return err
					}
				} else if err := appWire.AllowList.AddAllowed(args[0]); err != nil {
					return err
				}
			}
			entries, err := appWire.AllowList.LoadAllowList()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(out, e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the entry instead of adding it")
	return cmd
}
