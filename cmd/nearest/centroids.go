package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
	"github.com/orneryd/nornicdb-nearest/pkg/storage"
)

func newCentroidsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "centroids",
		Short: "Manage stored centroid sets",
	}
	cmd.AddCommand(
		newCentroidsPutCmd(a),
		newCentroidsGetCmd(a),
		newCentroidsListCmd(a),
		newCentroidsDeleteCmd(a),
	)
	return cmd
}

// withStore opens the store for the duration of fn.
func (a *app) withStore(fn func(*storage.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newCentroidsPutCmd(a *app) *cobra.Command {
	var dim int
	cmd := &cobra.Command{
		Use:   "put NAME [centroids.csv]",
		Short: "Store a centroid set read from CSV (or stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) == 2 {
				input = args[1]
			}
			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			samples, err := nearest.ReadSamples(in, dim)
			in.Close()
			if err != nil {
				return fmt.Errorf("reading centroids: %w", err)
			}

			set, err := storage.NewCentroidSet(args[0], nearest.Vectors(samples))
			if err != nil {
				return err
			}
			if err := a.withStore(func(s *storage.Store) error { return s.Save(set) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d centroids, dimensionality %d, version %s\n",
				set.Name, set.Len(), set.Dim, set.Version)
			return nil
		},
	}
	cmd.Flags().IntVar(&dim, "dim", 0, "centroid dimensionality; 0 infers it from the first record")
	return cmd
}

func newCentroidsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print a stored centroid set as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.Store) error {
				set, err := s.Load(args[0])
				if err != nil {
					return err
				}
				return nearest.WriteVectors(cmd.OutOrStdout(), set.Vectors())
			})
		},
	}
}

func newCentroidsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored centroid sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(s *storage.Store) error {
				names, err := s.List()
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tCENTROIDS\tDIM\tVERSION\tUPDATED")
				for _, name := range names {
					set, err := s.Load(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
						set.Name, set.Len(), set.Dim, set.Version, set.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newCentroidsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a stored centroid set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.Store) error {
				return s.Delete(args[0])
			})
		},
	}
}
