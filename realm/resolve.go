package realm

import (
	"fmt"
	"reflect"
	"strings"
)

// Match ranks, lower is better.
const (
	rankExact      = 0
	rankAssignable = 1
)

// BoundType is a Type closed over concrete type arguments. Non-generic types
// are closed over the empty list.
type BoundType struct {
	Type *Type
	Args TypeArgs

	subst map[string]TypeRef
}

// Key is the type key followed by its arguments, e.g. "sample.Box[int]".
func (bt *BoundType) Key() string { return bt.Type.Key + bt.Args.Key() }

// Env returns the environment realm-side code of this type runs with.
func (bt *BoundType) Env() Env {
	env := Env{
		Class:    bt.Key(),
		TypeArgs: bt.Args,
	}
	if mod := bt.Type.module; mod != nil {
		env.Module = mod.Name
		if mod.realm != nil {
			env.Realm = mod.realm.Name()
		}
	}
	return env
}

// ParamKeys returns the member's parameter keys with class type parameters
// replaced by this type's arguments.
func (bt *BoundType) ParamKeys(m *Member) []string {
	keys := make([]string, len(m.Params))
	for i, k := range m.Params {
		keys[i] = bt.resolveKey(k)
	}
	return keys
}

// resolveKey substitutes type parameters in a key. Slice and pointer prefixes
// are understood, so "[]T" closes to "[]int".
func (bt *BoundType) resolveKey(key string) string {
	switch {
	case strings.HasPrefix(key, "[]"):
		return "[]" + bt.resolveKey(key[2:])
	case strings.HasPrefix(key, "*"):
		return "*" + bt.resolveKey(key[1:])
	}
	if r, ok := bt.subst[key]; ok {
		return r.Key
	}
	return key
}

func (bt *BoundType) isParamKey(key string) bool {
	key = strings.TrimLeft(key, "[]*")
	_, ok := bt.subst[key]
	return ok
}

// Bind finds the member a contract method forwards to. Non-generic methods
// match on name, arity and parameter compatibility: exact key matches beat
// assignable ones, and a tie between the best candidates is an error.
// Generic methods match on name and arity only; their type arguments are
// checked per call. result is the contract's result type, nil when the
// contract method returns only an error.
func (bt *BoundType) Bind(name string, params []reflect.Type, result reflect.Type, generic bool) (*Member, error) {
	idxs := bt.Type.byName[name]
	if len(idxs) == 0 {
		return nil, fmt.Errorf("%w: %s has no member %s", ErrMemberNotFound, bt.Key(), name)
	}

	best, bestRank := []*Member(nil), -1
	for _, i := range idxs {
		m := bt.Type.members[i]
		if m.Generic() != generic || len(m.Params) != len(params) {
			continue
		}
		rank := rankExact
		if !generic {
			r, ok := bt.matchTypes(m, params)
			if !ok {
				continue
			}
			rank = r
		}
		if !bt.resultCompatible(m, result) {
			continue
		}
		switch {
		case bestRank < 0 || rank < bestRank:
			best, bestRank = []*Member{m}, rank
		case rank == bestRank:
			best = append(best, m)
		}
	}

	switch len(best) {
	case 0:
		return nil, fmt.Errorf("%w: %s has no member %s matching (%s)", ErrMemberNotFound, bt.Key(), name, typeList(params))
	case 1:
		return best[0], nil
	default:
		return nil, fmt.Errorf("%w: %s.%s(%s) matches %s", ErrAmbiguousMember, bt.Key(), name, typeList(params), signatures(best))
	}
}

// Construct picks the constructor matching the dynamic types of args and
// runs it.
func (bt *BoundType) Construct(env Env, args []any) (any, error) {
	best, bestRank := []*Member(nil), -1
	for _, c := range bt.Type.ctors {
		if len(c.goParams) != len(args) {
			continue
		}
		rank, ok := bt.matchValues(c, args)
		if !ok {
			continue
		}
		switch {
		case bestRank < 0 || rank < bestRank:
			best, bestRank = []*Member{c}, rank
		case rank == bestRank:
			best = append(best, c)
		}
	}

	switch len(best) {
	case 0:
		return nil, fmt.Errorf("%w: %s(%s)", ErrConstructorNotFound, bt.Key(), valueTypeList(args))
	case 1:
		return best[0].Call(env, nil, args)
	default:
		return nil, fmt.Errorf("%w: %s(%s) matches %s", ErrAmbiguousMember, bt.Key(), valueTypeList(args), signatures(best))
	}
}

func (bt *BoundType) matchTypes(m *Member, params []reflect.Type) (int, bool) {
	rank := rankExact
	for i, p := range params {
		if bt.resolveKey(m.Params[i]) == RefOf(p).Key {
			continue
		}
		if bt.isParamKey(m.Params[i]) || !p.AssignableTo(m.goParams[i]) {
			return 0, false
		}
		rank = rankAssignable
	}
	return rank, true
}

func (bt *BoundType) matchValues(m *Member, args []any) (int, bool) {
	rank := rankExact
	for i, a := range args {
		if a == nil {
			if !nillable(m.goParams[i]) {
				return 0, false
			}
			rank = rankAssignable
			continue
		}
		at := reflect.TypeOf(a)
		if bt.resolveKey(m.Params[i]) == RefOf(at).Key {
			continue
		}
		if bt.isParamKey(m.Params[i]) || !at.AssignableTo(m.goParams[i]) {
			return 0, false
		}
		rank = rankAssignable
	}
	return rank, true
}

func (bt *BoundType) resultCompatible(m *Member, result reflect.Type) bool {
	if result == nil {
		return true
	}
	if m.goResult == nil {
		return false
	}
	if bt.resolveKey(m.Result) == RefOf(result).Key {
		return true
	}
	if bt.isParamKey(m.Result) {
		return false
	}
	return m.goResult.AssignableTo(result) || m.goResult.Kind() == reflect.Interface
}

func typeList(ts []reflect.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

func valueTypeList(args []any) string {
	names := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			names[i] = "nil"
		} else {
			names[i] = reflect.TypeOf(a).String()
		}
	}
	return strings.Join(names, ", ")
}

func signatures(ms []*Member) string {
	sigs := make([]string, len(ms))
	for i, m := range ms {
		sigs[i] = m.Signature()
	}
	return strings.Join(sigs, " and ")
}
