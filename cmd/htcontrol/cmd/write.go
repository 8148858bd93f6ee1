package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/roffe/htcontrol/pkg/bar"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(writeCmd)
}

var writeCmd = &cobra.Command{
	Use:   "write <file>",
	Short: "upload a calibration table and commit it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := calibration.Load(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, _, err := initSession(ctx, cmd, table)
		if err != nil {
			return err
		}
		defer s.Disconnect()
		if err := requireAddress(ctx, s); err != nil {
			return err
		}

		start := time.Now()
		if err := s.WriteCalibration(); err != nil {
			return err
		}
		pb := bar.New(fmt.Sprintf("writing %d entries", table.Len()))
		err = waitEvent(ctx, s, func(ev session.Event) (bool, error) {
			switch e := ev.(type) {
			case session.WriteProgress:
				pb.Set(e.Percent)
			case session.WriteComplete:
				pb.Finish()
				return true, nil
			case session.WriteFailed:
				pb.Set(e.Percent)
				return true, fmt.Errorf("write failed at entry %d (%d%%): %w", e.Index, e.Percent, e.Err)
			case session.Notice:
				printEvent(e)
			}
			return false, nil
		})
		fmt.Println()
		if err != nil {
			return err
		}
		log.Println("took", time.Since(start).String())
		return nil
	},
}
