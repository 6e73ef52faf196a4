package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/daqsim/pkg/motor"
)

// portsCmd lists serial ports usable by serial motors
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := motor.Ports()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, p.Name)
		}
		return nil
	},
}
