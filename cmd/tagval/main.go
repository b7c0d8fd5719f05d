// tagval CLI - inspect value words and exercise the reference heap
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/tagval/config"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tagval.cli")

func main() {
	configDir := flag.String("config", "", "Directory containing tagval.toml (default: search upward from the working directory)")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides [log].verbosity)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tagval [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  decode <hex-word>...        Describe raw value words\n")
		fmt.Fprintf(os.Stderr, "  encode <kind> <literal>     Print the word for a literal\n")
		fmt.Fprintf(os.Stderr, "                              kinds: int32 double number bool null undefined magic key string\n")
		fmt.Fprintf(os.Stderr, "  stress [-n N] [-live K]     Allocate garbage and report collections\n")
		fmt.Fprintf(os.Stderr, "  journal [-n N]              Show recent journal entries\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	cfg.ConfigureLogging()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "decode":
		err = handleDecodeCommand(args[1:], os.Stdout)
	case "encode":
		err = handleEncodeCommand(args[1:], os.Stdout)
	case "stress":
		err = handleStressCommand(args[1:], cfg, os.Stdout)
	case "journal":
		err = handleJournalCommand(args[1:], cfg, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads tagval.toml from dir, or searches upward from the
// working directory when dir is empty. No file means defaults.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.Default(), nil
	}
	log.Debugf("using %s", cfg.Dir)
	return cfg, nil
}
