package backup

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/dump"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// DumpCmd writes the entries of a pool to a file (or stdout)
	DumpCmd = &cobra.Command{
		Use:   "dump [file]",
		Short: "Writes all entries of a pool to a dump file (stdout if no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, args []string) error {
			f, err := dump.ParseFormat(viper.GetString("format"))
			if err != nil {
				return err
			}
			p, err := s.GetOrCreatePool(viper.GetString("pool"))
			if err != nil {
				return err
			}

			if len(args) == 0 {
				w := bufio.NewWriter(os.Stdout)
				if _, err := dump.Dump(p, w, f); err != nil {
					return err
				}
				return w.Flush()
			}

			n, err := dumpToFile(p, args[0], f)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "dumped %d entries of pool %s to %s\n", n, p, args[0])
			return nil
		}),
	}

	// RestoreCmd writes the entries of a dump file into a pool
	RestoreCmd = &cobra.Command{
		Use:   "restore [file]",
		Short: "Writes the entries of a dump file (stdin if no file is given) into a pool",
		Args:  cobra.MaximumNArgs(1),
		RunE: util.RunWithStore(func(cmd *cobra.Command, s *store.Store, args []string) error {
			p, err := s.GetOrCreatePool(viper.GetString("pool"))
			if err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if len(args) == 1 {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				r = file
			}

			hdr, n, err := dump.Restore(p, bufio.NewReader(r), &dump.RestoreOptions{BatchSize: viper.GetInt("batch-size")})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "restored %d entries of pool %s (%s dump) into pool %s\n", n, hdr.Tag, hdr.Format, p)
			return nil
		}),
	}
)

func init() {
	key := "pool"
	DumpCmd.Flags().String(key, "default", util.WrapString("Tag of the pool to dump"))
	RestoreCmd.Flags().String(key, "default", util.WrapString("Tag of the pool to restore into (created if missing)"))

	key = "format"
	DumpCmd.Flags().String(key, dump.FormatBinary.String(), util.WrapString("Record format of the dump (json, gob, binary)"))

	key = "batch-size"
	RestoreCmd.Flags().Int(key, 64, util.WrapString("Number of entries written per batch"))
}

// dumpToFile streams the dump into path. The file is replaced atomically, so
// a failed dump never leaves a partial file behind.
func dumpToFile(p *store.Pool, path string, f dump.Format) (uint64, error) {
	pr, pw := io.Pipe()

	var n uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		w := bufio.NewWriter(pw)
		var err error
		if n, err = dump.Dump(p, w, f); err == nil {
			err = w.Flush()
		}
		pw.CloseWithError(err)
	}()

	err := atomic.WriteFile(path, pr)
	// unblocks the producer if the file could not be written
	_ = pr.CloseWithError(err)
	<-done
	if err != nil {
		return 0, err
	}
	return n, nil
}
