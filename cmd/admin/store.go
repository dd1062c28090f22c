package admin

import (
	"fmt"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:   "store",
		Short: "Inspect and maintain a whole store",
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the statistics of the store",
		Args:  cobra.NoArgs,
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			info, err := s.Info()
			if err != nil {
				return err
			}
			fmt.Printf("path=%s\n", s.Path())
			fmt.Printf("version=%d\n", info.Version)
			fmt.Printf("expiry=%s\n", s.Expiry())
			fmt.Printf("pools=%d/%d\n", info.NumPools, info.MaxPools)
			fmt.Printf("keys=%d\n", info.NumKeys)
			fmt.Printf("free=%s\n", util.FormatBytes(info.FreeSpace))
			return nil
		}),
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes every entry of every pool, the pools are kept",
		Args:  cobra.NoArgs,
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			if err := s.DeleteAllEntries(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		}),
	}
	dropPoolsCmd = &cobra.Command{
		Use:   "drop-pools",
		Short: "Deletes every pool together with its entries",
		Args:  cobra.NoArgs,
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			if err := s.DeleteAllPools(); err != nil {
				return err
			}
			fmt.Println("pools deleted successfully")
			return nil
		}),
	}
)

func init() {
	StoreCommands.AddCommand(infoCmd)
	StoreCommands.AddCommand(clearCmd)
	StoreCommands.AddCommand(dropPoolsCmd)
}
