// Package segments contains the `segments` CLI command, which lists the
// segment metadata persisted in a data directory.
package segments

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/rzbill/sift/internal/segment"
)

// Print writes metas to w, as a table or, when dump is set, as a Go-literal
// dump of each Meta.
func Print(w io.Writer, metas []segment.Meta, dump bool) error {
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAtMs < metas[j].CreatedAtMs })
	if dump {
		_, err := io.WriteString(w, litter.Options{HidePrivateFields: true, StripPackageNames: true}.Sdump(metas)+"\n")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEGMENT\tMAX_DOC\tDELETED\tALIVE\tDELETE_OPSTAMP")
	for _, m := range metas {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", m.ID, m.MaxDoc, m.NumDeleted, m.NumAlive(), m.DeleteOpstamp)
	}
	return tw.Flush()
}

// NewCommand constructs the `segments` command. open resolves the store to
// read from the executing command's flags and returns a func releasing it.
func NewCommand(open func(cmd *cobra.Command) (*segment.Store, func() error, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List persisted segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			dump, _ := cmd.Flags().GetBool("dump")
			store, release, err := open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = release() }()
			metas, err := store.List()
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), metas, dump)
		},
	}
	cmd.Flags().Bool("dump", false, "Dump full segment metadata")
	return cmd
}
