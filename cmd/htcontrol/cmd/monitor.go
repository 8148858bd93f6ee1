package cmd

import (
	"context"
	"errors"

	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/protocol"
	"github.com/roffe/htcontrol/pkg/session"
	"github.com/roffe/htcontrol/pkg/stream"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	flagPressure = "pressure"
	flagTable    = "table"
	flagListen   = "listen"
)

func init() {
	f := monitorCmd.Flags()
	f.Bool(flagPressure, false, "read the pressure the device computes itself")
	f.String(flagTable, "", "calibration table used to convert raw samples")
	f.String(flagListen, "", "serve live readings over WebSocket on this address")
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "print live readings until ctrl-c",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table := calibration.NewTable()
		if path, _ := cmd.Flags().GetString(flagTable); path != "" {
			t, err := calibration.Load(path)
			if err != nil {
				return err
			}
			table = t
		}

		ctx := cmd.Context()
		s, cfg, err := initSession(ctx, cmd, table)
		if err != nil {
			return err
		}
		defer s.Disconnect()
		if err := requireAddress(ctx, s); err != nil {
			return err
		}

		pressure, _ := cmd.Flags().GetBool(flagPressure)
		mode := protocol.ModeRaw
		if pressure {
			mode = protocol.ModePhysical
		}
		s.SetLivePressure(pressure)
		if err := s.SetMode(mode); err != nil {
			return err
		}

		listen := cfg.Listen
		if cmd.Flags().Changed(flagListen) {
			listen, _ = cmd.Flags().GetString(flagListen)
		}
		var hub *stream.Hub
		errg, gctx := errgroup.WithContext(ctx)
		if listen != "" {
			hub = stream.NewHub()
			errg.Go(func() error {
				return stream.ListenAndServe(gctx, listen, hub)
			})
		}
		errg.Go(func() error {
			err := waitEvent(gctx, s, func(ev session.Event) (bool, error) {
				printEvent(ev)
				if hub != nil {
					hub.Publish(ev)
				}
				return false, nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		return errg.Wait()
	},
}
