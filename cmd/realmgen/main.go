// Command realmgen generates forwarding stubs for realm proxy contracts.
//
// Usage:
//
//	realmgen [-o file] [package] [Interface ...]
//
// With no interface names every exported interface in the package that is a
// usable contract gets a stub. The package defaults to ".", which is what
// a //go:generate line wants.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/realmproxy/config"
	"github.com/chazu/realmproxy/proxygen"
)

func main() {
	output := flag.String("o", "", "Output file (default <package>_realmproxy.go in the package directory)")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: realmgen [flags] [package] [Interface ...]\n\n")
		flag.PrintDefaults()
	}
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

	pattern := "."
	args := flag.Args()
	if len(args) > 0 {
		pattern, args = args[0], args[1:]
	}

	model, err := proxygen.Introspect("", pattern, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	path := *output
	if path == "" {
		path = proxygen.DefaultOutput(model.Name)
		if pattern != "." {
			if dir, err := packageDir(pattern); err == nil {
				path = filepath.Join(dir, path)
			}
		}
	}

	if err := proxygen.WriteFile(path, model); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Printf("wrote %d stub(s) to %s\n", len(model.Contracts), path)
	}
}

// packageDir maps a relative directory pattern to its path; import paths
// are written to the working directory.
func packageDir(pattern string) (string, error) {
	info, err := os.Stat(pattern)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", pattern)
	}
	return pattern, nil
}
