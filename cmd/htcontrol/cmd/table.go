package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/roffe/htcontrol/pkg/calibration"
	"github.com/spf13/cobra"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "edit calibration files (.json .yaml .cbor)",
}

func init() {
	tableCmd.AddCommand(tableNewCmd, tableShowCmd, tableAddCmd, tableRemoveCmd, tableSortCmd, tableLookupCmd)
	rootCmd.AddCommand(tableCmd)
}

var tableNewCmd = &cobra.Command{
	Use:   "new <file> [rows]",
	Short: "create a table of rows stepped by 10",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid row count %q", args[1])
			}
			rows = n
		}
		t := calibration.NewTable()
		for i := 0; i < rows; i++ {
			t.Add()
		}
		return t.Save(args[0])
	},
}

var tableShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "print a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := calibration.Load(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "row\tadValue\trangeValue\t")
		for i, e := range t.Entries() {
			fmt.Fprintf(w, "%d\t%d\t%d\t\n", i, e.Raw, e.Physical)
		}
		return w.Flush()
	},
}

var tableAddCmd = &cobra.Command{
	Use:   "add <file> [adValue rangeValue]",
	Short: "append a row, stepped from the last one when no values are given",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 && len(args) != 3 {
			return errors.New("want <file> or <file> <adValue> <rangeValue>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := calibration.Load(args[0])
		if err != nil {
			return err
		}
		if len(args) == 1 {
			t.Add()
			return t.Save(args[0])
		}
		raw, err := strconv.ParseInt(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid adValue %q", args[1])
		}
		phys, err := strconv.ParseInt(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid rangeValue %q", args[2])
		}
		t.Append(calibration.Entry{Raw: int32(raw), Physical: int32(phys)})
		return t.Save(args[0])
	},
}

var tableRemoveCmd = &cobra.Command{
	Use:   "remove <file> <row>",
	Short: "delete a row",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := calibration.Load(args[0])
		if err != nil {
			return err
		}
		row, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid row %q", args[1])
		}
		if !t.RemoveAt(row) {
			return nil
		}
		return t.Save(args[0])
	},
}

var tableSortCmd = &cobra.Command{
	Use:   "sort <file>",
	Short: "sort rows by adValue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := calibration.Load(args[0])
		if err != nil {
			return err
		}
		t.Sort()
		return t.Save(args[0])
	},
}

var tableLookupCmd = &cobra.Command{
	Use:   "lookup <file> <adValue>",
	Short: "convert an AD value with the table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := calibration.Load(args[0])
		if err != nil {
			return err
		}
		raw, err := strconv.ParseInt(args[1], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid adValue %q", args[1])
		}
		t.Sort()
		v, err := t.Interpolate(raw)
		if errors.Is(err, calibration.ErrOutOfRange) {
			fmt.Fprintln(cmd.OutOrStdout(), red("Error"))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", v)
		return nil
	},
}
