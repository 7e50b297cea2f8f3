package proxy

import (
	"reflect"

	"github.com/chazu/realmproxy/realm"
)

// fillFuncs builds a struct-of-funcs contract value whose func fields
// forward to inst. Exported *Instance fields receive the handle.
func fillFuncs(inst *Instance, t reflect.Type) reflect.Value {
	v := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Type == instanceType {
			v.Field(i).Set(reflect.ValueOf(inst))
			continue
		}
		idx, ok := inst.ptype.Contract.Method(f.Name)
		if !ok {
			continue
		}
		v.Field(i).Set(reflect.MakeFunc(f.Type, forwarder(inst, idx, f.Type)))
	}
	return v
}

func forwarder(inst *Instance, idx int, ft reflect.Type) func([]reflect.Value) []reflect.Value {
	shape := inst.ptype.Contract.Methods[idx]
	return func(in []reflect.Value) []reflect.Value {
		var targs realm.TypeArgs
		if shape.Generic {
			targs = in[0].Interface().(realm.TypeArgs)
			in = in[1:]
		}
		args := make([]any, len(in))
		for i, a := range in {
			args[i] = a.Interface()
		}

		out, err := inst.invoke(idx, targs, args)

		results := make([]reflect.Value, 0, 2)
		if shape.Result != nil {
			rv := reflect.New(ft.Out(0)).Elem()
			if err == nil && out.IsValid() {
				rv.Set(out)
			}
			results = append(results, rv)
		}
		ev := reflect.New(errorType).Elem()
		if err != nil {
			ev.Set(reflect.ValueOf(err))
		}
		return append(results, ev)
	}
}
