package cmd

import (
	"context"
	"log"

	"github.com/roffe/htcontrol/pkg/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "find transducers on the bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, _, err := initSession(ctx, cmd, nil)
		if err != nil {
			return err
		}
		defer s.Disconnect()
		if err := scan(ctx, s); err != nil {
			return err
		}
		if _, ok := s.SelectedAddress(); !ok {
			return session.ErrNoAddress
		}
		return nil
	},
}

func scan(ctx context.Context, s *session.Session) error {
	if err := s.Scan(); err != nil {
		return err
	}
	return waitEvent(ctx, s, func(ev session.Event) (bool, error) {
		switch e := ev.(type) {
		case session.ScanProgress:
			printEvent(e)
		case session.ScanComplete:
			for _, a := range e.Candidates {
				log.Printf("found transducer at %s", a)
			}
			if len(e.Candidates) > 1 {
				log.Printf("selected %s, use --address to pick another", e.Selected)
			}
			return true, nil
		}
		return false, nil
	})
}
