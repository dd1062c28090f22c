package kv

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/engine"
	engineutil "github.com/ValentinKolb/fKV/lib/engine/util"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	putCmd.Flags().Duration("expire-in", 0, util.WrapString("Time to live of the entry, only used by stores with --expiry=arbitrary (whole seconds, 0 = never)"))
	listCmd.Flags().Int("limit", 0, util.WrapString("Maximum number of entries to print (0 = all)"))
}

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			value, err := store.WrapValue([]byte(args[1]))
			if err != nil {
				return err
			}
			if err := value.SetExpiry(viper.GetDuration("expire-in")); err != nil {
				return err
			}
			if err := p.Put(key, value); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		}),
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			resp, err := p.GetBytes(key)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			} else if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=true, resp=%s\n", key, resp)
			return nil
		}),
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			deleted, err := p.Delete(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%t\n", key, deleted)
			return nil
		}),
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			found, err := p.Exists(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", key, found)
			return nil
		}),
	}
	infoCmd = &cobra.Command{
		Use:   "info [key]",
		Short: "Prints the metadata of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			info, err := p.KeyInfo(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, pool=%s, key_len=%d, value_len=%d, generation=%d, expires=%s\n",
				key, p, info.KeyLen, info.ValueLen, info.GenCount, util.FormatExpiry(info.Expiry))
			return nil
		}),
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the entries of the pool",
		Args:  cobra.NoArgs,
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, _ []string) error {
			limit := viper.GetInt("limit")
			count := 0
			var valueErr error
			err := p.Range(func(pair store.KeyValuePair) bool {
				b, err := pair.Value.Bytes()
				if err != nil {
					valueErr = err
					return false
				}
				fmt.Printf("%s=%s\n", pair.Key, b)
				count++
				return limit <= 0 || count < limit
			})
			if err != nil {
				return err
			}
			if valueErr != nil {
				return valueErr
			}
			fmt.Printf("listed %d entries\n", count)
			return nil
		}),
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the value size distribution of the pool",
		Args:  cobra.NoArgs,
		RunE: runWithPool(func(cmd *cobra.Command, p *store.Pool, _ []string) error {
			hist := engineutil.NewSizeHistogram(engine.SectorAlignment, engine.MaxValueSize)
			if err := p.Range(func(pair store.KeyValuePair) bool {
				hist.AddSample(pair.Value.Len())
				return true
			}); err != nil {
				return err
			}

			fmt.Printf("entries=%d\n", hist.Count())
			fmt.Printf("value_bytes=%s\n", util.FormatBytes(uint64(hist.TotalBytes())))
			fmt.Printf("sector_bytes=%s\n", util.FormatBytes(uint64(hist.SectorBytes())))
			fmt.Printf("avg=%d p50=%d p99=%d\n", hist.AverageSize(), hist.PercentileEstimate(50), hist.PercentileEstimate(99))

			boundaries, percentages := hist.Distribution()
			for i, pct := range percentages {
				if i < len(boundaries) {
					fmt.Printf("  <= %-10d %6.2f%%\n", boundaries[i], pct)
				} else {
					fmt.Printf("  >  %-10d %6.2f%%\n", boundaries[len(boundaries)-1], pct)
				}
			}
			return nil
		}),
	}
)
