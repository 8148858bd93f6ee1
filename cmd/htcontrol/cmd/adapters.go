package cmd

import (
	"fmt"
	"sort"

	"github.com/roffe/htcontrol"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

func init() {
	rootCmd.AddCommand(adaptersCmd)
}

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "list available adapters and serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Adapters:")
		for _, info := range htcontrol.ListTransports() {
			fmt.Fprintln(out, "  "+info.String())
		}

		ports, err := enumerator.GetDetailedPortsList()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found!")
			return nil
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
		fmt.Fprintln(out, "Serial ports:")
		for _, port := range ports {
			if port.IsUSB {
				fmt.Fprintf(out, "  %s  USB ID %s:%s serial %s\n", port.Name, port.VID, port.PID, port.SerialNumber)
				continue
			}
			fmt.Fprintln(out, "  "+port.Name)
		}
		return nil
	},
}
