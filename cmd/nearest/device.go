package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb-nearest/pkg/gpu/opencl"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
)

func newDeviceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show the compute device that would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accel, err := a.openAccelerator()
			if err != nil {
				return err
			}
			defer accel.Release()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Backend:        %s\n", accel.Backend())
			fmt.Fprintf(w, "Device:         %s\n", accel.DeviceName())
			if mb := accel.DeviceMemoryMB(); mb > 0 {
				fmt.Fprintf(w, "Memory:         %d MB\n", mb)
			}
			fmt.Fprintf(w, "OpenCL devices: %d\n", opencl.DeviceCount())
			if reason := accel.FallbackReason(); reason != nil {
				fmt.Fprintf(w, "Fallback:       %v\n", reason)
			}
			dim := a.cfg.EffectiveDimensionality()
			fmt.Fprintf(w, "Batch capacity: %d points at dimensionality %d\n",
				nearest.ClampItems(batchOrMax(a.cfg.BatchItems, dim), dim), dim)
			return nil
		},
	}
}

func batchOrMax(items, dim int) int {
	if items <= 0 {
		return nearest.MaxItems(dim)
	}
	return items
}
