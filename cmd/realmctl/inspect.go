package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chazu/realmproxy/config"
	"github.com/chazu/realmproxy/manifest"
	"github.com/chazu/realmproxy/realm"
)

// handleInspectCommand processes `realmctl inspect`. When the module's
// library is linked into this binary the module is loaded into a scratch
// realm and its classes are listed too.
func handleInspectCommand(cfg *config.Config, args []string, w io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: inspect <module>", errUsage)
	}
	path, err := manifest.Locate(args[0], cfg.ModulePath)
	if err != nil {
		return err
	}
	m, err := manifest.Open(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "module:   %s\n", m.Name)
	fmt.Fprintf(w, "path:     %s\n", m.Path)
	fmt.Fprintf(w, "library:  %s\n", m.Library)
	if m.Version != "" {
		fmt.Fprintf(w, "version:  %s\n", m.Version)
	}
	if len(m.Exports) > 0 {
		fmt.Fprintf(w, "exports:  %s\n", strings.Join(m.Exports, ", "))
	}
	if len(m.Shared) > 0 {
		fmt.Fprintf(w, "shared:   %s\n", strings.Join(m.Shared, ", "))
	}

	if _, ok := realm.LookupLibrary(m.Library); !ok {
		fmt.Fprintf(w, "\nlibrary %s is not linked into realmctl; classes unavailable\n", m.Library)
		return nil
	}
	return listClasses(path, w)
}

func listClasses(path string, w io.Writer) error {
	mgr := realm.NewManager()
	r, err := mgr.CreateRealm("inspect", true)
	if err != nil {
		return err
	}
	defer mgr.Close(context.Background())

	mod, err := mgr.LoadModule(r, path)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tKIND\tSIGNATURE")
	for _, t := range mod.Types() {
		name := t.Key
		if t.Generic() {
			params := make([]string, len(t.TypeParams))
			for i, p := range t.TypeParams {
				params[i] = p.String()
			}
			name += "[" + strings.Join(params, ", ") + "]"
		}
		for _, c := range t.Constructors() {
			fmt.Fprintf(tw, "%s\tconstructor\t%s\n", name, c.Signature())
		}
		for _, m := range t.Members() {
			fmt.Fprintf(tw, "%s\tmethod\t%s\n", name, m.Signature())
		}
	}
	if shared := mod.SharedTypes(); len(shared) > 0 {
		fmt.Fprintf(tw, "\nshared types: %s\n", strings.Join(shared, ", "))
	}
	return tw.Flush()
}
