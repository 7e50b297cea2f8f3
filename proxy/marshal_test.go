package proxy

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/realmproxy/manifest"
	"github.com/chazu/realmproxy/realm"
)

type payload struct {
	N    int
	Tags []string
}

type private struct{ n int }

type wrapper struct{ P *private }

type hidden struct{ p *payload }

type labelled struct {
	Name  string
	Tags  []string
	Owner *payload
	Any   any
	count int
}

type node struct{ Next []any }

type unitObj struct{}

func init() {
	realm.RegisterLibrary(&realm.Library{
		Name:    "proxyunit",
		Version: "0.1.0",
		Build: func(b *realm.Builder) {
			b.Shared(reflect.TypeFor[*payload]())
			b.Class("Obj").Constructor(func() *unitObj { return &unitObj{} })
		},
	})
}

func unitModule(t *testing.T) *realm.Module {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.toml")
	if err := manifest.Write(path, &manifest.Module{Name: "unit", Library: "proxyunit"}); err != nil {
		t.Fatal(err)
	}
	m := realm.NewManager()
	r, err := m.CreateRealm("unit", true)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := m.LoadModule(r, path)
	if err != nil {
		t.Fatal(err)
	}
	return mod
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want MarshalPolicy
		err  bool
	}{
		{"", ByIdentity, false},
		{"identity", ByIdentity, false},
		{" Copy ", ByCopy, false},
		{"clone", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
	if ByCopy.String() != "copy" || MarshalPolicy(9).String() != "policy(9)" {
		t.Errorf("String() = %s, %s", ByCopy, MarshalPolicy(9))
	}
}

func TestMarshalPrimitivesAndContainers(t *testing.T) {
	mod := unitModule(t)
	m := Marshaler{}

	for _, v := range []any{1, "s", 2.5, true, uint8(3), nil} {
		got, err := m.In(mod, v)
		if err != nil || got != v {
			t.Errorf("In(%v) = %v, %v", v, got, err)
		}
	}

	list := []string{"a", "b"}
	got, err := m.In(mod, list)
	if err != nil {
		t.Fatal(err)
	}
	list[0] = "changed"
	if got.([]string)[0] != "a" {
		t.Error("slice shares its backing array with the caller")
	}

	counts := map[string]int{"a": 1}
	got, err = m.In(mod, counts)
	if err != nil {
		t.Fatal(err)
	}
	counts["a"] = 2
	if got.(map[string]int)["a"] != 1 {
		t.Error("map is shared with the caller")
	}

	mixed, err := m.In(mod, []any{1, "x", nil})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(mixed, []any{1, "x", nil}) {
		t.Errorf("In([]any) = %v", mixed)
	}

	if got, _ := m.In(mod, [2]int{4, 5}); got != [2]int{4, 5} {
		t.Errorf("In(array) = %v", got)
	}
}

func TestMarshalRejectsUnshared(t *testing.T) {
	mod := unitModule(t)
	m := Marshaler{}

	tests := []struct {
		name string
		v    any
	}{
		{"func", func() {}},
		{"chan", make(chan int)},
		{"unshared pointer", &private{}},
		{"struct holding unshared pointer", wrapper{P: &private{}}},
		{"unexported reference field", hidden{p: &payload{}}},
		{"nested", []any{1, func() {}}},
		{"map value", map[string]any{"k": &private{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.In(mod, tt.v); !errors.Is(err, ErrNotMarshalable) {
				t.Errorf("In = %v, want ErrNotMarshalable", err)
			}
		})
	}
}

func TestMarshalSharedByPolicy(t *testing.T) {
	mod := unitModule(t)
	p := &payload{N: 5, Tags: []string{"x"}}

	got, err := Marshaler{Policy: ByIdentity}.In(mod, p)
	if err != nil {
		t.Fatal(err)
	}
	if got.(*payload) != p {
		t.Error("ByIdentity did not pass the same object")
	}

	got, err = Marshaler{Policy: ByCopy}.In(mod, p)
	if err != nil {
		t.Fatal(err)
	}
	cp := got.(*payload)
	if cp == p {
		t.Fatal("ByCopy passed the same object")
	}
	if !reflect.DeepEqual(cp, p) {
		t.Errorf("copy = %+v, want %+v", cp, p)
	}
	cp.Tags[0] = "y"
	if p.Tags[0] != "x" {
		t.Error("copy shares nested state")
	}

	got, err = Marshaler{Policy: ByCopy}.In(mod, payload{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got.(payload).N != 2 {
		t.Errorf("struct copy = %+v", got)
	}

	var nilPayload *payload
	got, err = Marshaler{Policy: ByCopy}.In(mod, nilPayload)
	if err != nil || got.(*payload) != nil {
		t.Errorf("In(nil *payload) = %v, %v", got, err)
	}
}

func TestMarshalOut(t *testing.T) {
	mod := unitModule(t)
	m := Marshaler{}

	rv, err := m.Out(mod, 3, reflect.TypeFor[int]())
	if err != nil || rv.Interface() != 3 {
		t.Errorf("Out(3) = %v, %v", rv, err)
	}

	rv, err = m.Out(mod, "s", reflect.TypeFor[any]())
	if err != nil || rv.Type() != reflect.TypeFor[any]() || rv.Interface() != "s" {
		t.Errorf("Out(s) as any = %v, %v", rv, err)
	}

	rv, err = m.Out(mod, nil, reflect.TypeFor[*payload]())
	if err != nil || !rv.IsNil() {
		t.Errorf("Out(nil) = %v, %v", rv, err)
	}

	if _, err := m.Out(mod, "s", reflect.TypeFor[int]()); !errors.Is(err, realm.ErrContractMismatch) {
		t.Errorf("Out(string as int) = %v, want ErrContractMismatch", err)
	}
	if _, err := m.Out(mod, &private{}, reflect.TypeFor[any]()); !errors.Is(err, ErrNotMarshalable) {
		t.Errorf("Out(*private) = %v, want ErrNotMarshalable", err)
	}
}

func TestMarshalStructValues(t *testing.T) {
	mod := unitModule(t)
	m := Marshaler{}

	got, err := m.In(mod, private{n: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got.(private).n != 3 {
		t.Errorf("In(private) = %+v", got)
	}

	owner := &payload{N: 1}
	in := labelled{Name: "a", Tags: []string{"x"}, Owner: owner, Any: []int{1}, count: 7}
	got, err = m.In(mod, in)
	if err != nil {
		t.Fatal(err)
	}
	out := got.(labelled)
	if !reflect.DeepEqual(out, in) {
		t.Errorf("In(labelled) = %+v, want %+v", out, in)
	}
	if out.Owner != owner {
		t.Error("shared field did not keep its identity")
	}
	in.Tags[0] = "changed"
	in.Any.([]int)[0] = 9
	if out.Tags[0] != "x" || out.Any.([]int)[0] != 1 {
		t.Error("struct copy shares containers with the caller")
	}

	arr, err := m.In(mod, [2]private{{n: 1}, {n: 2}})
	if err != nil || arr.([2]private)[1].n != 2 {
		t.Errorf("In([2]private) = %v, %v", arr, err)
	}
}

func TestMarshalRejectsCycles(t *testing.T) {
	mod := unitModule(t)
	m := Marshaler{}

	list := []any{nil}
	list[0] = list

	table := map[string]any{}
	table["self"] = table

	n := node{Next: []any{nil}}
	n.Next[0] = n

	tests := []struct {
		name string
		v    any
	}{
		{"slice", list},
		{"map", table},
		{"through struct", n},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.In(mod, tt.v); !errors.Is(err, ErrNotMarshalable) {
				t.Errorf("In = %v, want ErrNotMarshalable", err)
			}
		})
	}

	// The same container twice side by side is not a cycle.
	shared := []int{1}
	got, err := m.In(mod, []any{shared, shared})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{[]int{1}, []int{1}}) {
		t.Errorf("In(siblings) = %v", got)
	}
}
