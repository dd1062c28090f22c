package admin

import (
	"fmt"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	// PoolCommands represents the pool command group
	PoolCommands = &cobra.Command{
		Use:   "pool",
		Short: "Manage the pools of a store",
	}
	listPoolsCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the pools of the store",
		Args:  cobra.NoArgs,
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			pools, err := s.Pools()
			if err != nil {
				return err
			}
			for _, p := range pools {
				fmt.Printf("id=%d, tag=%s\n", p.ID(), p.Tag())
			}
			fmt.Printf("%d pools\n", len(pools))
			return nil
		}),
	}
	createPoolCmd = &cobra.Command{
		Use:   "create [tag]",
		Short: "Creates a pool (or looks up the existing one)",
		Args:  cobra.ExactArgs(1),
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, args []string) error {
			p, err := s.GetOrCreatePool(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id=%d, tag=%s\n", p.ID(), p.Tag())
			return nil
		}),
	}
	deletePoolCmd = &cobra.Command{
		Use:   "delete [tag]",
		Short: "Deletes a pool together with its entries",
		Args:  cobra.ExactArgs(1),
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, args []string) error {
			pools, err := s.Pools()
			if err != nil {
				return err
			}
			for _, p := range pools {
				if p.Tag() == args[0] {
					if err := s.DeletePool(p); err != nil {
						return err
					}
					fmt.Println("pool deleted successfully")
					return nil
				}
			}
			return store.NewError("delete_pool", store.RetCNotFound, fmt.Sprintf("no pool with tag %q", args[0]))
		}),
	}
)

func init() {
	PoolCommands.AddCommand(listPoolsCmd)
	PoolCommands.AddCommand(createPoolCmd)
	PoolCommands.AddCommand(deletePoolCmd)
}
