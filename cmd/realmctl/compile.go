package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/realmproxy/manifest"
)

// handleCompileCommand processes `realmctl compile`. The output defaults to
// the manifest path with its extension replaced by .rmod.
func handleCompileCommand(args []string, w io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: compile <manifest.toml> [out.rmod]", errUsage)
	}
	src := args[0]
	out := strings.TrimSuffix(src, manifest.ManifestExt) + manifest.ImageExt
	if len(args) == 2 {
		out = args[1]
	}

	m, err := manifest.Load(src)
	if err != nil {
		return err
	}
	if err := manifest.WriteImage(out, m); err != nil {
		return err
	}
	fmt.Fprintf(w, "compiled %s (%s) -> %s\n", m.Name, m.Library, out)
	return nil
}
