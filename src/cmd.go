package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"tilecache/src/api"
	"tilecache/src/cache"
	"tilecache/src/config"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var configPath, base, limit, logLevel string
	var readOnly, sendFile bool

	flagSet := pflag.NewFlagSet("tilecache", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&base, "base", "", "cache base directory")
	flagSet.StringVar(&limit, "limit", "", "disk budget, e.g. 512MB (0 disables eviction)")
	flagSet.BoolVar(&readOnly, "readonly", false, "never write to the cache")
	flagSet.BoolVar(&sendFile, "sendfile", false, "GET answers with the tile path instead of its content")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}

	if rest := flagSet.Args(); len(rest) > 0 {
		switch rest[0] {
		case "version":
			fmt.Fprintf(stdout, "tilecache v%s\n", Version)
			return nil
		case "help":
			printHelp(stdout, flagSet)
			return nil
		default:
			return fmt.Errorf("unknown command: %s", rest[0])
		}
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("base") {
		cfg.Base = base
	}
	if flagSet.Changed("limit") {
		cfg.Limit = limit
	}
	if flagSet.Changed("readonly") {
		cfg.ReadOnly = readOnly
	}
	if flagSet.Changed("sendfile") {
		cfg.SendFile = sendFile
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	cacheConfig, err := cfg.CacheConfig(logger)
	if err != nil {
		return err
	}

	if !api.Init(cacheConfig) {
		return fmt.Errorf("failed to initialize cache at %s", cacheConfig.BaseDir)
	}
	defer api.Close()

	return runSession(stdin, stdout)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	cfg := config.Default()
	cfg.Expand()
	return cfg, nil
}

// runSession reads one command per line until EOF or CLOSE.
func runSession(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToUpper(parts[0])
		var success bool
		var action, result string

		switch command {
		case "GET":
			tile, err := parseTile(parts, 6)
			if err != nil {
				fmt.Fprintf(out, "ERROR: %v\n", err)
				continue
			}
			content := api.Get(tile)
			if content != nil {
				fmt.Fprintf(out, "OK: %s\n", string(content))
			} else {
				fmt.Fprintln(out, "MISS: cache not found")
			}
			continue

		case "SET":
			tile, err := parseTile(parts, 7)
			if err != nil {
				fmt.Fprintf(out, "ERROR: %v\n", err)
				continue
			}
			success = api.Set(tile, []byte(parts[6]))
			action, result = "set", "set"

		case "DELETE":
			tile, err := parseTile(parts, 6)
			if err != nil {
				fmt.Fprintf(out, "ERROR: %v\n", err)
				continue
			}
			success = api.Delete(tile)
			action, result = "delete", "deleted"

		case "LOCK":
			tile, err := parseTile(parts, 6)
			if err != nil {
				fmt.Fprintf(out, "ERROR: %v\n", err)
				continue
			}
			if api.Lock(tile) {
				fmt.Fprintln(out, "OK: locked")
			} else {
				fmt.Fprintln(out, "BUSY: lock held elsewhere")
			}
			continue

		case "UNLOCK":
			tile, err := parseTile(parts, 6)
			if err != nil {
				fmt.Fprintf(out, "ERROR: %v\n", err)
				continue
			}
			success = api.Unlock(tile)
			action, result = "unlock", "unlocked"

		case "STATS":
			stats, ok := api.Stats()
			if !ok {
				fmt.Fprintln(out, "ERROR: failed to read stats")
				continue
			}
			fmt.Fprintf(out, "OK: entries=%d size=%s limit=%s hits=%d misses=%d stores=%d evictions=%d\n",
				stats.Entries, humanize.Bytes(uint64(stats.TotalSize)), formatLimit(stats.Limit),
				stats.Hits, stats.Misses, stats.Stores, stats.Evictions)
			continue

		case "CLOSE":
			if api.Close() {
				fmt.Fprintln(out, "OK: closed")
			} else {
				fmt.Fprintln(out, "ERROR: failed to close")
			}
			return nil

		default:
			fmt.Fprintf(out, "ERROR: unknown command: %s\n", command)
			continue
		}

		if success {
			fmt.Fprintf(out, "OK: %s\n", result)
		} else {
			fmt.Fprintf(out, "ERROR: failed to %s\n", action)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// parseTile reads "CMD layer z x y ext [...]" and requires exactly want fields.
func parseTile(parts []string, want int) (*cache.TileRef, error) {
	if len(parts) != want {
		usage := "layer z x y ext"
		if want == 7 {
			usage += " content"
		}
		return nil, fmt.Errorf("%s requires %d arguments: %s", strings.ToUpper(parts[0]), want-1, usage)
	}
	coords := make([]int, 3)
	for i, field := range parts[2:5] {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid coordinate %q", field)
		}
		coords[i] = n
	}
	return &cache.TileRef{Layer: parts[1], Z: coords[0], X: coords[1], Y: coords[2], Ext: parts[5]}, nil
}

func formatLimit(limit int64) string {
	if limit <= 0 {
		return "none"
	}
	return humanize.Bytes(uint64(limit))
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	help := `tilecache - shared on-disk tile cache

USAGE:
    tilecache [FLAGS] [COMMAND]

COMMANDS:
    help     Show this help message
    version  Show version information

INTERACTIVE MODE:
    Run without a command to read one request per line from stdin.

    GET    layer z x y ext
    SET    layer z x y ext content
    DELETE layer z x y ext
    LOCK   layer z x y ext
    UNLOCK layer z x y ext
    STATS
    CLOSE

    Responses:
    OK: <result>     - Success
    MISS: <reason>   - Cache miss
    BUSY: <reason>   - Lock held by another producer
    ERROR: <reason>  - Failure

EXAMPLES:
    echo 'SET osm 3 1234567 890123 png data' | tilecache --base ./cache
    echo 'GET osm 3 1234567 890123 png' | tilecache --base ./cache
    echo 'STATS' | tilecache --config tilecache.yaml

FLAGS:
`
	fmt.Fprint(out, help)
	fmt.Fprint(out, flagSet.FlagUsages())
}
