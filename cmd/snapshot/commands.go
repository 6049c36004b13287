package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/hotkv/cmd/util"
	"github.com/ValentinKolb/hotkv/lib/db"
	"github.com/ValentinKolb/hotkv/lib/logging"
	"github.com/ValentinKolb/hotkv/lib/store/lstore"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logger = logging.NewLogger("cmd/snapshot")

	SnapshotCmd = &cobra.Command{
		Use:   "snapshot [key-file] [snapshot-file]",
		Short: "Build an engine from a key file and write a snapshot",
		Long: util.WrapString(`Reads one entry per line from the key file (- for stdin) and writes a snapshot of the resulting engine.
A line is either a key or a key and a value separated by a tab.`),
		Args: cobra.ExactArgs(2),
		RunE: runSnapshot,
	}

	InspectCmd = &cobra.Command{
		Use:   "inspect [snapshot-file]",
		Short: "Load a snapshot and print the engine statistics as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	ScanCmd = &cobra.Command{
		Use:   "scan [snapshot-file]",
		Short: "Load a snapshot and print a range of keys in ascending order",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
)

func init() {
	key := "start"
	ScanCmd.Flags().String(key, "", util.WrapString("First key of the range (inclusive)"))
	key = "end"
	ScanCmd.Flags().String(key, "", util.WrapString("End of the range (exclusive, empty = no upper bound)"))
	key = "prefix"
	ScanCmd.Flags().String(key, "", util.WrapString("Only print keys with this prefix (overrides --start and --end)"))
	key = "limit"
	ScanCmd.Flags().Int(key, 100, util.WrapString("Maximum number of keys to print (0 = all)"))
	key = "values"
	ScanCmd.Flags().Bool(key, false, util.WrapString("Print the values next to the keys"))
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

func runSnapshot(_ *cobra.Command, args []string) error {
	lines, err := util.ReadKeyFile(args[0])
	if err != nil {
		return err
	}

	database, err := util.NewEngine()
	if err != nil {
		return err
	}
	defer database.Close()

	for i, line := range lines {
		key, value, _ := strings.Cut(line, "\t")
		database.Set(key, []byte(value), uint64(i+1))
	}

	f, err := os.Create(args[1])
	if err != nil {
		return errors.Wrap(err, "create snapshot")
	}
	w := bufio.NewWriter(f)
	if err := database.Save(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write snapshot")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close snapshot")
	}

	stat, err := os.Stat(args[1])
	if err != nil {
		return errors.Wrap(err, "stat snapshot")
	}
	logger.WithField("compression", viper.GetString("compression")).Infof(
		"wrote %s keys to %s (%s)", humanize.Comma(int64(database.Len())), args[1], humanize.IBytes(uint64(stat.Size())))
	return nil
}

func runInspect(_ *cobra.Command, args []string) error {
	database, err := util.LoadEngine(args[0])
	if err != nil {
		return err
	}
	defer database.Close()

	out, err := json.MarshalIndent(database.GetInfo(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode info")
	}
	fmt.Println(string(out))
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	database, err := util.LoadEngine(args[0])
	if err != nil {
		return err
	}
	defer database.Close()

	start, end := viper.GetString("start"), viper.GetString("end")
	if prefix := viper.GetString("prefix"); prefix != "" {
		start, end = prefix, prefixEnd(prefix)
	}

	s := lstore.NewLocalStore(func() db.KVDB { return database })
	entries, err := s.Scan(start, end, viper.GetInt("limit"))
	if err != nil {
		return err
	}

	printValues := viper.GetBool("values")
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, e := range entries {
		if printValues {
			fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Value)
		} else {
			fmt.Fprintln(w, e.Key)
		}
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or "" if there is none
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
