package proxygen

import (
	"errors"
	"fmt"
	"go/types"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/packages"
)

const (
	proxyPath = "github.com/chazu/realmproxy/proxy"
	realmPath = "github.com/chazu/realmproxy/realm"
)

// ErrNotContract reports an interface that cannot be served by a stub.
var ErrNotContract = errors.New("not a usable contract")

var log = commonlog.GetLogger("realmproxy.proxygen")

// Introspect loads the package matching pattern (relative to dir, or the
// working directory when dir is empty) and models its contract interfaces.
// With names empty, every exported interface is considered and the ones that
// are not contracts are skipped; otherwise each named interface must be a
// contract.
func Introspect(dir, pattern string, names []string) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes,
		Dir:  dir,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", pattern)
	}
	if len(pkgs) > 1 {
		return nil, fmt.Errorf("%s matches %d packages, want one", pattern, len(pkgs))
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", pattern)
	}
	return FromPackage(pkg.Types, names)
}

// FromPackage models the contracts of an already type-checked package.
func FromPackage(pkg *types.Package, names []string) (*PackageModel, error) {
	model := &PackageModel{
		ImportPath: pkg.Path(),
		Name:       pkg.Name(),
	}
	scope := pkg.Scope()

	strict := len(names) > 0
	if !strict {
		names = scope.Names()
	}

	for _, name := range names {
		obj := scope.Lookup(name)
		if obj == nil {
			return nil, fmt.Errorf("%s: no declaration named %s", pkg.Path(), name)
		}
		tn, ok := obj.(*types.TypeName)
		if !ok || !tn.Exported() {
			if strict {
				return nil, fmt.Errorf("%w: %s is not an exported type", ErrNotContract, name)
			}
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		iface, ok := named.Underlying().(*types.Interface)
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %s is not an interface", ErrNotContract, name)
			}
			continue
		}

		cm, err := extractContract(named, iface)
		if err != nil {
			if strict {
				return nil, err
			}
			log.Warningf("skipping %s: %s", name, err.Error())
			continue
		}
		model.Contracts = append(model.Contracts, *cm)
	}

	sort.Slice(model.Contracts, func(i, j int) bool { return model.Contracts[i].Name < model.Contracts[j].Name })
	return model, nil
}

func extractContract(named *types.Named, iface *types.Interface) (*ContractModel, error) {
	name := named.Obj().Name()
	cm := &ContractModel{Name: name}

	tparams := named.TypeParams()
	for i := 0; i < tparams.Len(); i++ {
		tp := tparams.At(i)
		cm.TypeParams = append(cm.TypeParams, TypeParamModel{
			Name:       tp.Obj().Name(),
			Constraint: tp.Constraint(),
		})
	}

	if !iface.IsMethodSet() {
		return nil, fmt.Errorf("%w: %s is a constraint interface", ErrNotContract, name)
	}
	if iface.NumMethods() == 0 {
		return nil, fmt.Errorf("%w: %s has no methods", ErrNotContract, name)
	}

	for i := 0; i < iface.NumMethods(); i++ {
		fn := iface.Method(i)
		if !fn.Exported() {
			return nil, fmt.Errorf("%w: %s: unexported method %s", ErrNotContract, name, fn.Name())
		}
		mm, err := extractMethod(fn)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotContract, name, err)
		}
		cm.Methods = append(cm.Methods, mm)
	}
	sort.Slice(cm.Methods, func(i, j int) bool { return cm.Methods[i].Name < cm.Methods[j].Name })
	return cm, nil
}

func extractMethod(fn *types.Func) (MethodModel, error) {
	sig := fn.Type().(*types.Signature)
	mm := MethodModel{Name: fn.Name()}

	if sig.Variadic() {
		return mm, fmt.Errorf("method %s is variadic", fn.Name())
	}

	results := sig.Results()
	n := results.Len()
	if n == 0 || !isErrorType(results.At(n-1).Type()) {
		return mm, fmt.Errorf("method %s must return error as its last result", fn.Name())
	}
	switch n {
	case 1:
	case 2:
		mm.Result = results.At(0).Type()
	default:
		return mm, fmt.Errorf("method %s returns %d values", fn.Name(), n)
	}

	params := sig.Params()
	start := 0
	if params.Len() > 0 && isTypeArgs(params.At(0).Type()) {
		mm.Generic = true
		mm.TypeArgs = paramName(params.At(0).Name(), 0)
		start = 1
	}
	for i := start; i < params.Len(); i++ {
		p := params.At(i)
		mm.Params = append(mm.Params, ParamModel{
			Name:   paramName(p.Name(), i),
			GoType: p.Type(),
		})
	}
	return mm, nil
}

func isErrorType(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func isTypeArgs(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == realmPath && obj.Name() == "TypeArgs"
}
