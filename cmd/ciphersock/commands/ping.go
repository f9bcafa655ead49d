package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ciphersock/internal/services/session"
)

func pingCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "ping <addr>",
		Short: "Connect, handshake and time encrypted round trips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := appWire.SessionOptions(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			began := time.Now()
			return session.Run(cmd.Context(), opts, func(s *session.Session) error {
				fmt.Fprintf(out, "connected to %s in %s (server key %s)\n",
					args[0], time.Since(began).Round(time.Microsecond), s.ServerKey())
				for i := 1; i <= count; i++ {
					t := time.Now()
					if _, err := s.Send(cmd.Context(), []byte(fmt.Sprintf("ping %d", i)), true); err != nil {
						return err
					}
					fmt.Fprintf(out, "seq=%d rtt=%s\n", i, time.Since(t).Round(time.Microsecond))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 3, "number of round trips")
	return cmd
}
