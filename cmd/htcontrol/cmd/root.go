package cmd

import (
	"context"
	"errors"
	"log"

	"github.com/fatih/color"
	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/roffe/htcontrol/pkg/config"
	"github.com/roffe/htcontrol/pkg/session"
	"github.com/spf13/cobra"
)

var red = color.New(color.FgRed).SprintFunc()

var errIngestStopped = errors.New("bus reader stopped")

var rootCmd = &cobra.Command{
	Use:          "htcontrol",
	Short:        "Pressure transducer calibration over CAN",
	Long:         `Scan for transducers, configure them and upload calibration tables`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagConfig    = "config"
	flagPort      = "port"
	flagBaudrate  = "baudrate"
	flagBitrate   = "bitrate"
	flagAddress   = "address"
	flagBroadcast = "broadcast"
	flagDebug     = "debug"
	flagAdapter   = "adapter"
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	pf := rootCmd.PersistentFlags()
	pf.String(flagConfig, "htcontrol.yaml", "config file")
	pf.StringP(flagAdapter, "a", "SLCan", "what adapter to use")
	pf.StringP(flagPort, "p", "", "com-port, Windows COM#\nLinux/OSX: /dev/ttyACM#")
	pf.IntP(flagBaudrate, "b", 115200, "com-port baudrate")
	pf.Float64(flagBitrate, 500, "CAN bitrate in kbit/s")
	pf.String(flagAddress, "", "device address, decimal or 0x hex")
	pf.Bool(flagBroadcast, false, "send commands to every device on the bus")
	pf.BoolP(flagDebug, "d", false, "debug mode")
}

// loadConfig reads the config file, flags given on the command line win
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	pf := cmd.Flags()
	path, err := pf.GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if pf.Changed(flagAdapter) {
		cfg.Adapter, _ = pf.GetString(flagAdapter)
	}
	if pf.Changed(flagPort) {
		cfg.Port, _ = pf.GetString(flagPort)
	}
	if pf.Changed(flagBaudrate) {
		cfg.PortBaudrate, _ = pf.GetInt(flagBaudrate)
	}
	if pf.Changed(flagBitrate) {
		cfg.Bitrate, _ = pf.GetFloat64(flagBitrate)
	}
	if pf.Changed(flagAddress) {
		cfg.Address, _ = pf.GetString(flagAddress)
	}
	if pf.Changed(flagBroadcast) {
		cfg.Broadcast, _ = pf.GetBool(flagBroadcast)
	}
	if pf.Changed(flagDebug) {
		cfg.Debug, _ = pf.GetBool(flagDebug)
	}
	return cfg, nil
}

// initSession connects the configured transport. Close the session with
// Disconnect when done.
func initSession(ctx context.Context, cmd *cobra.Command, table *calibration.Table) (*session.Session, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.SessionOpts()
	if err != nil {
		return nil, nil, err
	}
	t, err := htcontrol.NewTransport(cfg.Adapter, cfg.TransportConfig())
	if err != nil {
		return nil, nil, err
	}
	s, err := session.New(t, table, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// waitEvent prints events until fn reports done, ctx ends or the ingest
// loop stops
func waitEvent(ctx context.Context, s *session.Session, fn func(session.Event) (bool, error)) error {
	done := s.Done()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			// LoopStopped is lost when the event channel was full
			if err := s.Err(); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return errIngestStopped
		case ev := <-s.Events():
			if ls, ok := ev.(session.LoopStopped); ok {
				return ls.Err
			}
			done, err := fn(ev)
			if err != nil || done {
				return err
			}
		}
	}
}

// requireAddress scans the bus when no address is configured
func requireAddress(ctx context.Context, s *session.Session) error {
	if _, ok := s.SelectedAddress(); ok || s.Broadcast() {
		return nil
	}
	if err := scan(ctx, s); err != nil {
		return err
	}
	if _, ok := s.SelectedAddress(); !ok {
		return session.ErrNoAddress
	}
	return nil
}

func printEvent(ev session.Event) {
	switch e := ev.(type) {
	case session.Notice:
		log.Println(e.Event.ColorString())
	case session.RawSample:
		if e.Err != nil {
			log.Printf("%s raw: %d physical: %s", e.Address, e.Raw, red("Error"))
			return
		}
		log.Printf("%s raw: %d physical: %.2f", e.Address, e.Raw, e.Physical)
	case session.PressureReading:
		log.Printf("%s pressure: %d", e.Address, e.Value)
	case session.ScanProgress:
		log.Printf("scanning %d%%", e.Percent)
	case session.ScanComplete:
		log.Printf("found %v, selected %s", e.Candidates, e.Selected)
	case session.WriteFailed:
		log.Printf("%s at entry %d (%d%%): %v", red("write failed"), e.Index, e.Percent, e.Err)
	case session.WriteComplete:
		log.Printf("wrote %d entries", e.Entries)
	default:
		log.Printf("%#v", ev)
	}
}
