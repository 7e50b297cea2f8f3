package proxygen

import (
	"bytes"
	"fmt"
	"go/types"
	"os"

	"github.com/dave/jennifer/jen"
)

// Header marks generated files.
const Header = "Code generated by realmgen. DO NOT EDIT."

const receiver = "p"

// Generate renders the stub file for model.
func Generate(model *PackageModel) (string, error) {
	if len(model.Contracts) == 0 {
		return "", fmt.Errorf("%s: no contracts to generate", model.ImportPath)
	}

	f := jen.NewFilePathName(model.ImportPath, model.Name)
	f.HeaderComment(Header)
	f.ImportAlias(proxyPath, "proxy")
	f.ImportAlias(realmPath, "realm")

	var inits []jen.Code
	for i := range model.Contracts {
		c := &model.Contracts[i]
		if err := emitContract(f, c); err != nil {
			return "", err
		}
		if c.Generic() {
			emitRegisterFunc(f, c)
		} else {
			inits = append(inits, registerCall(c, jen.Id(c.Name), jen.Id(StubName(c.Name))))
		}
	}
	if len(inits) > 0 {
		f.Func().Id("init").Params().Block(inits...)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("rendering stubs for %s: %w", model.ImportPath, err)
	}
	return buf.String(), nil
}

// WriteFile generates the stubs for model into path.
func WriteFile(path string, model *PackageModel) error {
	code, err := Generate(model)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code), 0644)
}

func emitContract(f *jen.File, c *ContractModel) error {
	stub := StubName(c.Name)

	f.Comment(fmt.Sprintf("%s forwards %s calls into a realm.", stub, c.Name))
	decl := f.Type().Id(stub)
	if c.Generic() {
		params := make([]jen.Code, len(c.TypeParams))
		for i, tp := range c.TypeParams {
			constraint, err := typeCode(tp.Constraint)
			if err != nil {
				return fmt.Errorf("%s: type parameter %s: %w", c.Name, tp.Name, err)
			}
			params[i] = jen.Id(tp.Name).Add(constraint)
		}
		decl.Types(params...)
	}
	decl.Struct(jen.Id("inst").Op("*").Qual(proxyPath, "Instance"))
	f.Line()

	f.Func().Params(recv(c)).Id("ProxyInstance").Params().Op("*").Qual(proxyPath, "Instance").Block(
		jen.Return(jen.Id(receiver).Dot("inst")),
	)
	f.Line()

	for _, m := range c.Methods {
		if err := emitMethod(f, c, m); err != nil {
			return fmt.Errorf("%s.%s: %w", c.Name, m.Name, err)
		}
		f.Line()
	}
	return nil
}

func emitMethod(f *jen.File, c *ContractModel, m MethodModel) error {
	var params []jen.Code
	targs := jen.Nil()
	if m.Generic {
		params = append(params, jen.Id(m.TypeArgs).Qual(realmPath, "TypeArgs"))
		targs = jen.Id(m.TypeArgs)
	}

	callArgs := []jen.Code{jen.Lit(m.Name), targs}
	for _, p := range m.Params {
		t, err := typeCode(p.GoType)
		if err != nil {
			return err
		}
		params = append(params, jen.Id(p.Name).Add(t))
		callArgs = append(callArgs, jen.Id(p.Name))
	}
	call := jen.Id(receiver).Dot("inst").Dot("Call").Call(callArgs...)

	fn := f.Func().Params(recv(c)).Id(m.Name).Params(params...)
	if m.Result == nil {
		fn.Error().Block(
			jen.List(jen.Id("_"), jen.Err()).Op(":=").Add(call),
			jen.Return(jen.Err()),
		)
		return nil
	}

	result, err := typeCode(m.Result)
	if err != nil {
		return err
	}
	fn.Parens(jen.List(result, jen.Error())).Block(
		jen.Return(jen.Qual(proxyPath, "Result").Index(result.Clone()).Call(call)),
	)
	return nil
}

// emitRegisterFunc emits RegisterXProxy[T...]() for a generic contract;
// callers register each instantiation they create proxies for.
func emitRegisterFunc(f *jen.File, c *ContractModel) {
	name := RegisterFuncName(c.Name)
	f.Comment(fmt.Sprintf("%s registers the %s[%s] stub for one instantiation.", name, c.Name, typeParamNames(c)))

	params := make([]jen.Code, len(c.TypeParams))
	args := make([]jen.Code, len(c.TypeParams))
	for i, tp := range c.TypeParams {
		constraint, _ := typeCode(tp.Constraint)
		params[i] = jen.Id(tp.Name).Add(constraint)
		args[i] = jen.Id(tp.Name)
	}

	contract := jen.Id(c.Name).Index(args...)
	stub := jen.Id(StubName(c.Name)).Index(args...)
	f.Func().Id(name).Types(params...).Params().Block(registerCall(c, contract, stub))
	f.Line()
}

func registerCall(c *ContractModel, contract, stub *jen.Statement) jen.Code {
	return jen.Qual(proxyPath, "RegisterStub").Index(contract.Clone()).Call(
		jen.Func().Params(jen.Id("inst").Op("*").Qual(proxyPath, "Instance")).Add(contract.Clone()).Block(
			jen.Return(jen.Op("&").Add(stub).Values(jen.Dict{jen.Id("inst"): jen.Id("inst")})),
		),
	)
}

func recv(c *ContractModel) jen.Code {
	t := jen.Id(StubName(c.Name))
	if c.Generic() {
		args := make([]jen.Code, len(c.TypeParams))
		for i, tp := range c.TypeParams {
			args[i] = jen.Id(tp.Name)
		}
		t.Index(args...)
	}
	return jen.Id(receiver).Op("*").Add(t)
}

func typeParamNames(c *ContractModel) string {
	s := ""
	for i, tp := range c.TypeParams {
		if i > 0 {
			s += ", "
		}
		s += tp.Name
	}
	return s
}

// typeCode renders t as a jennifer type expression, qualifying named types
// by import path.
func typeCode(t types.Type) (*jen.Statement, error) {
	switch t := t.(type) {
	case *types.Basic:
		return jen.Id(t.Name()), nil
	case *types.Alias:
		return namedCode(t.Obj(), t.TypeArgs())
	case *types.Named:
		return namedCode(t.Obj(), t.TypeArgs())
	case *types.TypeParam:
		return jen.Id(t.Obj().Name()), nil
	case *types.Pointer:
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Op("*").Add(elem), nil
	case *types.Slice:
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index().Add(elem), nil
	case *types.Array:
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Index(jen.Lit(int(t.Len()))).Add(elem), nil
	case *types.Map:
		key, err := typeCode(t.Key())
		if err != nil {
			return nil, err
		}
		elem, err := typeCode(t.Elem())
		if err != nil {
			return nil, err
		}
		return jen.Map(key).Add(elem), nil
	case *types.Interface:
		if t.Empty() {
			return jen.Any(), nil
		}
	case *types.Signature:
		if t.Variadic() {
			break
		}
		var params, results []jen.Code
		for i := 0; i < t.Params().Len(); i++ {
			p, err := typeCode(t.Params().At(i).Type())
			if err != nil {
				return nil, err
			}
			params = append(params, p)
		}
		for i := 0; i < t.Results().Len(); i++ {
			r, err := typeCode(t.Results().At(i).Type())
			if err != nil {
				return nil, err
			}
			results = append(results, r)
		}
		fn := jen.Func().Params(params...)
		switch len(results) {
		case 0:
		case 1:
			fn.Add(results[0])
		default:
			fn.Parens(jen.List(results...))
		}
		return fn, nil
	}
	return nil, fmt.Errorf("type %s cannot appear in a generated stub", t)
}

func namedCode(obj *types.TypeName, targs *types.TypeList) (*jen.Statement, error) {
	var s *jen.Statement
	if obj.Pkg() == nil {
		s = jen.Id(obj.Name())
	} else {
		s = jen.Qual(obj.Pkg().Path(), obj.Name())
	}
	if targs.Len() == 0 {
		return s, nil
	}
	args := make([]jen.Code, targs.Len())
	for i := 0; i < targs.Len(); i++ {
		a, err := typeCode(targs.At(i))
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return s.Index(args...), nil
}
