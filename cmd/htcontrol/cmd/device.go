package cmd

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/roffe/htcontrol/pkg/protocol"
	"github.com/roffe/htcontrol/pkg/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(setIDCmd, intervalCmd, saveCmd, resetCmd, modeCmd)
}

// deviceCommand runs fn against the configured device, scanning first when
// no address is set
func deviceCommand(cmd *cobra.Command, fn func(s *session.Session) error) error {
	ctx := cmd.Context()
	s, _, err := initSession(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer s.Disconnect()
	if err := requireAddress(ctx, s); err != nil {
		return err
	}
	return fn(s)
}

var setIDCmd = &cobra.Command{
	Use:   "setid <id>",
	Short: "change the device CAN id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		newID, err := protocol.ParseAddress(args[0])
		if err != nil {
			return err
		}
		return deviceCommand(cmd, func(s *session.Session) error {
			if err := s.SetID(newID); err != nil {
				return err
			}
			log.Printf("device id set to %s", newID)
			return nil
		})
	},
}

var intervalCmd = &cobra.Command{
	Use:   "interval <ms>",
	Short: "set the report interval in milliseconds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil || ms == 0 {
			return fmt.Errorf("invalid interval %q", args[0])
		}
		return deviceCommand(cmd, func(s *session.Session) error {
			return s.SetInterval(uint16(ms))
		})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "save the device settings to flash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return deviceCommand(cmd, (*session.Session).SaveToFlash)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "restore the device factory settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := promptui.Select{
			Label: "Restore factory settings, the calibration is lost [Yes/No]",
			Items: []string{"No", "Yes"},
		}
		_, result, err := prompt.Run()
		if err != nil {
			return fmt.Errorf("prompt failed %v", err)
		}
		if result != "Yes" {
			return errors.New("aborted")
		}
		return deviceCommand(cmd, (*session.Session).FactoryReset)
	},
}

var modeCmd = &cobra.Command{
	Use:       "mode <physical|raw|commit>",
	Short:     "switch what the device reports",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"physical", "raw", "commit"},
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := protocol.ParseMode(args[0])
		if err != nil {
			return err
		}
		return deviceCommand(cmd, func(s *session.Session) error {
			return s.SetMode(m)
		})
	},
}
