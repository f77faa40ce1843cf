// Command ecusim runs the scripted-ECU simulator: it loads every
// configuration document found in a directory and starts the UDS, J1939,
// and DoIP responders each one declares.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LoveWonYoung/ecusim/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configDir string

	cmd := &cobra.Command{
		Use:   "ecusim [can-device]",
		Short: "Scripted multi-protocol ECU simulator",
		Long: `ecusim loads every *.ecu.yaml and doipserver.yaml document in
--config-dir and simulates the UDS, J1939, and DoIP behavior each one
declares. The CAN device argument is optional; omit it to run DoIP-only.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var canDevice string
			if len(args) == 1 {
				canDevice = args[0]
			}
			return runSupervisor(configDir, canDevice)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "directory containing *.ecu.yaml and doipserver.yaml")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// runSupervisor blocks until SIGINT/SIGTERM cancels ctx and every
// responder goroutine has joined; that clean path returns nil so run()
// reports exit code 0. Only a startup failure propagates as a non-nil
// error.
func runSupervisor(configDir, canDevice string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := supervisor.New(configDir, canDevice)
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("ecusim: %w", err)
	}
	return nil
}
