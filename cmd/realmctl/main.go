// Command realmctl compiles, inspects and audits realm modules.
//
// Usage:
//
//	realmctl compile <manifest.toml> [out.rmod]
//	realmctl inspect <module>
//	realmctl journal [-db path] [realm]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/realmproxy/config"
)

var errUsage = errors.New("usage")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Verbosity = 2
	}
	cfg.ConfigureLogging()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(cfg, args[0], args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "compile":
		return handleCompileCommand(args, w)
	case "inspect":
		return handleInspectCommand(cfg, args, w)
	case "journal":
		return handleJournalCommand(cfg, args, w)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: realmctl [-v] <command> [args]

Commands:
  compile <manifest.toml> [out.rmod]   validate a manifest and write its CBOR image
  inspect <module>                     describe a manifest or image and its classes
  journal [-db path] [realm]           print recorded lifecycle events
`)
}
