package kv

import (
	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Perform key-value operations on a pool",
	}
)

func init() {
	// Set the pool all key value operations work on
	KeyValueCommands.PersistentFlags().String("pool", "default", util.WrapString("Tag of the pool to use (created if missing)"))
	KeyValueCommands.PersistentFlags().Bool("int", false, util.WrapString("Interpret keys as decimal numbers stored as 8 byte big endian integers"))

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(statsCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// runWithPool wraps a command function that works on the pool selected by --pool
func runWithPool(fn func(cmd *cobra.Command, p *store.Pool, args []string) error) func(*cobra.Command, []string) error {
	return util.RunWithStore(func(cmd *cobra.Command, s *store.Store, args []string) error {
		p, err := s.GetOrCreatePool(viper.GetString("pool"))
		if err != nil {
			return err
		}
		return fn(cmd, p, args)
	})
}

// parseKey parses a key argument honoring --int
func parseKey(arg string) (store.Key, error) {
	return util.ParseKey(arg, viper.GetBool("int"))
}
