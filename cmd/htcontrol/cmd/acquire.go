package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
	"github.com/roffe/htcontrol/pkg/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(acquireCmd)
}

var acquireCmd = &cobra.Command{
	Use:   "acquire <file> <row>",
	Short: "store the current AD value in a table row",
	Long:  "Waits for the next raw sample from the device and writes it as the AD value of row. Rows count in adValue order and the file is saved sorted, it is created if missing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		row, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid row %q: %w", args[1], err)
		}
		table, err := calibration.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			table = calibration.NewTable()
		} else if err != nil {
			return err
		}
		// rows are numbered in adValue order, as the session keeps them
		table.Sort()
		for table.Len() <= row {
			table.Add()
		}
		target, _ := table.At(row)

		ctx := cmd.Context()
		s, _, err := initSession(ctx, cmd, table)
		if err != nil {
			return err
		}
		defer s.Disconnect()
		// samples are only taken from one device, broadcast does not apply
		if _, ok := s.SelectedAddress(); !ok {
			if err := scan(ctx, s); err != nil {
				return err
			}
			if _, ok := s.SelectedAddress(); !ok {
				return session.ErrNoAddress
			}
		}
		s.SetBroadcast(false)
		if err := s.SetMode(protocol.ModeRaw); err != nil {
			return err
		}
		if err := waitEvent(ctx, s, func(ev session.Event) (bool, error) {
			_, ok := ev.(session.RawSample)
			return ok, nil
		}); err != nil {
			return err
		}

		raw, err := s.AcquireRaw(row)
		if err != nil {
			return err
		}
		if err := table.Save(path); err != nil {
			return err
		}
		log.Printf("row %d: adValue %d rangeValue %d", row, raw, target.Physical)
		return nil
	},
}
