// Command cmetactl inspects and manipulates on-disk consensus metadata
// records directly, without a running replication process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cmetactl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cmetactl",
		Short:         "inspect and manage consensus metadata records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateCmd(), newDumpCmd(), newVerifyCmd(), newStatCmd())
	return root
}
