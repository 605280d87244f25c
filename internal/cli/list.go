package cli

import (
	"github.com/spf13/cobra"

	"github.com/symtools/sympatch/internal/logging"
	"github.com/symtools/sympatch/internal/symfile"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <file>",
		Short: "List the source paths recorded in a file's debug symbols",
		Long: `Print every source file path recorded in the debug symbols of the given
binary, one per line, resolving a split companion the same way patching
does. Useful for deciding what to rewrite before running a patch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			patcher := symfile.NewPatcher(logging.NewWithComponent(logging.DefaultConfig(), "patcher"))
			paths, err := patcher.ListSourcePaths(args[0])
			if err != nil {
				return err
			}
			for _, path := range paths {
				cmd.Println(path)
			}
			return nil
		},
	}
}
