package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"ciphersock/internal/services/session"
)

// send <addr> <message>: connect, send one message, print the reply.
func sendCmd() *cobra.Command {
	var noReply bool
	cmd := &cobra.Command{
		Use:   "send <addr> <message>",
		Short: "Send one encrypted message and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := appWire.SessionOptions(args[0])
			if err != nil {
				return err
			}
			return session.Run(cmd.Context(), opts, func(s *session.Session) error {
				reply, err := s.Send(cmd.Context(), []byte(args[1]), !noReply)
				if err != nil {
					return err
				}
				if !noReply {
					fmt.Fprintln(cmd.OutOrStdout(), string(reply))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noReply, "no-reply", false, "do not wait for a reply")
	return cmd
}
