package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/fKV/cmd/admin"
	"github.com/ValentinKolb/fKV/cmd/backup"
	"github.com/ValentinKolb/fKV/cmd/kv"
	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "fkv",
		Short: "client for device resident key-value stores",
		Long: fmt.Sprintf(`fKV (v%s)

A client for key-value stores that live on a flash device, with
pluggable engines (in memory, pebble on disk, or the native device
helper library).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fKV v%s\n", Version)
		},
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Print store statistics and operation metrics in the Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, _ []string) error {
			info, err := s.Info()
			if err != nil {
				return err
			}

			set := metrics.NewSet()
			set.NewGauge(fmt.Sprintf(`fkv_store_keys{path=%q}`, s.Path()), func() float64 { return float64(info.NumKeys) })
			set.NewGauge(fmt.Sprintf(`fkv_store_pools{path=%q}`, s.Path()), func() float64 { return float64(info.NumPools) })
			set.NewGauge(fmt.Sprintf(`fkv_store_free_bytes{path=%q}`, s.Path()), func() float64 { return float64(info.FreeSpace) })
			set.WritePrometheus(os.Stdout)
			metrics.WritePrometheus(os.Stdout, false)
			return nil
		}),
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(admin.StoreCommands)
	RootCmd.AddCommand(admin.PoolCommands)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(backup.DumpCmd)
	RootCmd.AddCommand(backup.RestoreCmd)
	RootCmd.AddCommand(metricsCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
	key := "verbose"
	RootCmd.PersistentFlags().BoolP(key, "v", false, util.WrapString("Print the store configuration before running the command"))
	key = "print-metrics"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("Print the operation metrics in the Prometheus text format after the command"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
