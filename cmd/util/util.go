package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ValentinKolb/hotkv/lib/db/engines/hot"
	"github.com/ValentinKolb/hotkv/lib/logging"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupEngineFlags adds the flags shared by all commands that open an engine
func SetupEngineFlags(cmd *cobra.Command) {
	key := "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("The level at which logs will be output (debug, info, warn, error)"))

	key = "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of shards of the engine (0 = one per CPU)"))

	key = "compression"
	cmd.PersistentFlags().String(key, "none", WrapString("Compression of written snapshots (none, zstd, lz4). Loading detects the compression from the snapshot header"))
}

// InitConfig loads .env files and binds environment variables with the prefix HOTKV_
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("hotkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper and applies the log level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return logging.SetLevel(viper.GetString("log-level"))
}

// GetEngineOptions reads the engine options from viper
func GetEngineOptions() (*hot.DBOptions, error) {
	compression, err := hot.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return nil, err
	}
	opts := hot.DefaultOptions()
	if n := viper.GetInt("shards"); n > 0 {
		opts.NumShards = n
	}
	opts.Compression = compression
	return opts, nil
}

// NewEngine creates an engine configured from viper
func NewEngine() (*hot.DB, error) {
	opts, err := GetEngineOptions()
	if err != nil {
		return nil, err
	}
	return hot.NewHotDB(opts), nil
}

// LoadEngine creates an engine configured from viper and fills it from the snapshot at path
func LoadEngine(path string) (*hot.DB, error) {
	database, err := NewEngine()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		_ = database.Close()
		return nil, errors.Wrap(err, "open snapshot")
	}
	defer f.Close()

	if err := database.Load(bufio.NewReader(f)); err != nil {
		_ = database.Close()
		return nil, errors.Wrapf(err, "load snapshot %s", path)
	}
	return database, nil
}

// ReadKeys reads one key per line from r. Empty lines are skipped.
func ReadKeys(r io.Reader) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 2*hot.MaxKeyLen)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			keys = append(keys, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read keys")
	}
	return keys, nil
}

// ReadKeyFile reads the keys of path, "-" reads from stdin
func ReadKeyFile(path string) ([]string, error) {
	if path == "-" {
		return ReadKeys(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open key file")
	}
	defer f.Close()
	return ReadKeys(f)
}

// GenerateKeys returns n distinct URL-like keys
func GenerateKeys(n int) []string {
	hosts := []string{"example.com", "docs.example.org", "api.example.net", "cdn.example.io"}
	sections := []string{"users", "orders", "products", "articles", "images"}

	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("https://%s/%s/%d/item-%08x",
			hosts[i%len(hosts)], sections[(i/len(hosts))%len(sections)], i/100, uint32(i)*2654435761)
	}
	return keys
}
