// Package proxygen introspects contract interfaces in a Go package and
// generates the forwarding stubs that let the proxy package materialize them.
package proxygen

import "go/types"

// PackageModel is the set of contracts found in one package.
type PackageModel struct {
	ImportPath string
	Name       string // short package name
	Contracts  []ContractModel
}

// ContractModel is one interface contract.
type ContractModel struct {
	Name       string
	TypeParams []TypeParamModel
	Methods    []MethodModel
}

// Generic reports whether the interface has type parameters.
func (c *ContractModel) Generic() bool { return len(c.TypeParams) > 0 }

// TypeParamModel is a type parameter of a generic contract.
type TypeParamModel struct {
	Name       string
	Constraint types.Type
}

// MethodModel is one contract method. Params exclude the leading
// realm.TypeArgs of generic methods; Result is nil for error-only methods.
type MethodModel struct {
	Name     string
	Generic  bool
	TypeArgs string // parameter name of the leading realm.TypeArgs
	Params   []ParamModel
	Result   types.Type
}

// ParamModel is a method parameter.
type ParamModel struct {
	Name   string
	GoType types.Type
}
