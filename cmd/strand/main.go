// Copyright 2025 Strand ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Command strand is the runtime's diagnostic CLI: it reports the build
// version, probes which compute devices are usable on this machine, and
// runs small benchmarks against them.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/strand-ml/strand/array"
	"github.com/strand-ml/strand/backend/webgpu"
	"github.com/strand-ml/strand/transform"
)

const version = "v0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "strand",
		Short:         "Strand ML Runtime diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newVersionCmd(), newDevicesCmd(), newBenchCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the runtime version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Strand ML Runtime %s\n", version)
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Probe available compute devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("cpu      available")
			if webgpu.IsAvailable() {
				gpu, err := webgpu.Register()
				if err != nil {
					return err
				}
				defer gpu.Release()
				fmt.Printf("webgpu   available (%s)\n", gpu.Name())
			} else {
				fmt.Println("webgpu   unavailable")
			}
			return nil
		},
	}
}

func newBenchCmd() *cobra.Command {
	var (
		size    int
		iters   int
		useGPU  bool
		compile bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a matmul benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := array.CPU
			if useGPU {
				if !webgpu.IsAvailable() {
					return fmt.Errorf("webgpu device not available")
				}
				gpu, err := webgpu.Register()
				if err != nil {
					return err
				}
				defer gpu.Release()
				dev = array.WebGPU
			}
			return runBench(size, iters, dev, compile)
		},
	}
	cmd.Flags().IntVar(&size, "size", 512, "matrix dimension")
	cmd.Flags().IntVar(&iters, "iters", 10, "timed iterations")
	cmd.Flags().BoolVar(&useGPU, "gpu", false, "run on the WebGPU device")
	cmd.Flags().BoolVar(&compile, "compile", false, "run through a compiled trace")
	return cmd
}

func runBench(size, iters int, dev array.Device, compiled bool) error {
	shape := array.Shape{size, size}
	a, err := array.Ones(shape, array.Float32, dev)
	if err != nil {
		return err
	}
	b, err := array.Full(0.5, shape, array.Float32, dev)
	if err != nil {
		return err
	}

	step := func(xs []*array.Array) ([]*array.Array, error) {
		c, err := array.MatMul(xs[0], xs[1])
		if err != nil {
			return nil, err
		}
		return []*array.Array{c}, nil
	}
	if compiled {
		step = transform.Compile(step).Call
	}

	// Warm-up forces backend initialization and, when compiling, the trace.
	if err := runStep(step, a, b); err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < iters; i++ {
		if err := runStep(step, a, b); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	flops := 2 * float64(size) * float64(size) * float64(size) * float64(iters)
	fmt.Printf("matmul %dx%d on %s: %d iters in %s (%.2f GFLOP/s)\n",
		size, size, dev, iters, elapsed.Round(time.Millisecond),
		flops/elapsed.Seconds()/1e9)
	return nil
}

func runStep(step func([]*array.Array) ([]*array.Array, error), a, b *array.Array) error {
	outs, err := step([]*array.Array{a, b})
	if err != nil {
		return err
	}
	if err := array.Eval(outs...); err != nil {
		return err
	}
	return array.Synchronize()
}
