package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/nornicdb-nearest/pkg/metrics"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
	"github.com/orneryd/nornicdb-nearest/pkg/storage"
)

type assignOptions struct {
	set       string
	centroids string
	output    string
	retries   int
}

func newAssignCmd(a *app) *cobra.Command {
	opts := &assignOptions{}
	cmd := &cobra.Command{
		Use:   "assign [points.csv]",
		Short: "Assign points to their nearest centroid",
		Long: `Reads points from a CSV file (or stdin) and writes each point followed by
its nearest centroid. Points from a failed dispatch are retried; points that
still fail are written with empty centroid columns.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) == 1 {
				input = args[0]
			}
			return a.runAssign(cmd, input, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.set, "set", "", "name of a stored centroid set")
	f.StringVar(&opts.centroids, "centroids", "", "CSV file of centroids, one per record")
	f.StringVarP(&opts.output, "output", "o", "-", "output file")
	f.IntVar(&opts.retries, "retries", 1, "times to retry points from a failed dispatch")
	cmd.MarkFlagsMutuallyExclusive("set", "centroids")
	cmd.MarkFlagsOneRequired("set", "centroids")
	return cmd
}

func (a *app) loadCentroids(opts *assignOptions) (*storage.CentroidSet, error) {
	if opts.set != "" {
		store, err := a.openStore()
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(opts.set)
	}

	f, err := os.Open(opts.centroids)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := nearest.ReadSamples(f, 0)
	if err != nil {
		return nil, fmt.Errorf("reading centroids: %w", err)
	}
	return storage.NewCentroidSet(opts.centroids, nearest.Vectors(samples))
}

func (a *app) runAssign(cmd *cobra.Command, input string, opts *assignOptions) (err error) {
	set, err := a.loadCentroids(opts)
	if err != nil {
		return err
	}
	if err := a.cfg.CheckDimensionality(set.Dim); err != nil {
		return fmt.Errorf("centroid set %q: %w", set.Name, err)
	}

	in, err := openInput(cmd, input)
	if err != nil {
		return err
	}
	samples, err := nearest.ReadSamples(in, set.Dim)
	in.Close()
	if err != nil {
		return fmt.Errorf("reading points: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewPrometheus(reg)
	if err != nil {
		return err
	}
	if listen := a.cfg.Metrics.Listen; listen != "" {
		ln, lnErr := net.Listen("tcp", listen)
		if lnErr != nil {
			return fmt.Errorf("metrics listener: %w", lnErr)
		}
		a.logger.Info("serving metrics", "addr", ln.Addr().String())

		ctx, cancel := context.WithCancel(cmd.Context())
		var g errgroup.Group
		g.Go(func() error { return metrics.ServeListener(ctx, ln, reg) })
		defer func() {
			cancel()
			if serveErr := g.Wait(); serveErr != nil {
				err = errors.Join(err, fmt.Errorf("metrics server: %w", serveErr))
			}
		}()
	}

	accel, err := a.openAccelerator()
	if err != nil {
		return err
	}
	defer accel.Release()

	assigner, err := nearest.New(accel.Device(), set.Dim,
		nearest.WithLogger(a.logger.WithDevice(accel.DeviceName())),
		nearest.WithMetrics(collector),
		nearest.WithBatchItems(a.cfg.BatchItems),
		nearest.WithKernel(a.cfg.KernelRef()),
	)
	if err != nil {
		return err
	}
	defer assigner.Close()

	if err := assigner.PrepareCentroids(set.Vectors()); err != nil {
		return err
	}

	pending := make([]nearest.Point, len(samples))
	for i, s := range samples {
		pending[i] = s
	}
	var lastErr error
	for attempt := 0; attempt <= opts.retries && len(pending) > 0; attempt++ {
		failed, dispatchErr, err := assignAll(assigner, pending)
		if err != nil {
			return err
		}
		pending, lastErr = failed, dispatchErr
	}
	if len(pending) > 0 {
		a.logger.Warn("points left unassigned", "count", len(pending), "error", lastErr)
	}

	out, closeOut, err := openOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	if err := nearest.WriteAssignments(out, samples); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}

	st := assigner.Stats()
	a.logger.Info("assignment finished",
		"points", len(samples),
		"assigned", st.ItemsAssigned,
		"dispatches", st.Dispatches,
		"centroids", set.Len(),
		"centroid_version", set.Version,
		"backend", accel.Backend().String(),
	)
	if len(pending) > 0 {
		return fmt.Errorf("%d points unassigned: %w", len(pending), lastErr)
	}
	return nil
}

// assignAll adds every point and flushes. It returns the points of failed
// dispatches in submission order with the joined dispatch errors; err is
// reserved for misuse of the assigner.
func assignAll(a *nearest.Assigner, points []nearest.Point) (failed []nearest.Point, dispatchErr error, err error) {
	var errs []error
	collect := func(out nearest.Outcome) {
		if out.Failed() {
			failed = append(failed, out.Unassigned...)
			errs = append(errs, out.Err)
		}
	}
	for _, p := range points {
		out, err := a.Add(p)
		if err != nil {
			return nil, nil, err
		}
		collect(out)
	}
	out, err := a.Flush()
	if err != nil {
		return nil, nil, err
	}
	collect(out)
	return failed, errors.Join(errs...), nil
}

// openOutput returns stdout for "-", otherwise a created file.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
