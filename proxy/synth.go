package proxy

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/tliron/commonlog"
)

// ProxyType is the synthesized proxy for one contract shape. It is built
// once, cached for the life of the process, and never changes.
type ProxyType struct {
	Contract *Contract
	// Seq is the synthesis number; equal Seq means the same ProxyType.
	Seq int

	stub stubFactory
}

// Synthesizer builds ProxyTypes on demand and caches them by contract.
type Synthesizer struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*ProxyType
	bySig  map[string][]*ProxyType
	count  int
	log    commonlog.Logger
}

// NewSynthesizer creates an empty synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{
		byType: make(map[reflect.Type]*ProxyType),
		bySig:  make(map[string][]*ProxyType),
		log:    commonlog.GetLogger("realmproxy.proxy"),
	}
}

var defaultSynthesizer = NewSynthesizer()

// DefaultSynthesizer is the process-wide synthesizer used by hosts that are
// not given one.
func DefaultSynthesizer() *Synthesizer { return defaultSynthesizer }

// Count returns how many ProxyTypes have been synthesized.
func (s *Synthesizer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// BuildOrGet returns the ProxyType for contract type t, synthesizing it on
// first use. Concurrent first uses synthesize exactly once.
func (s *Synthesizer) BuildOrGet(t reflect.Type) (*ProxyType, error) {
	s.mu.RLock()
	pt, ok := s.byType[t]
	s.mu.RUnlock()
	if ok {
		return pt, nil
	}

	c, err := ContractOf(t)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pt, ok := s.byType[t]; ok {
		return pt, nil
	}
	for _, candidate := range s.bySig[c.Signature] {
		if sameShapes(candidate.Contract, c) {
			s.byType[t] = candidate
			return candidate, nil
		}
	}

	pt = &ProxyType{Contract: c}
	if c.Kind == InterfaceContract {
		stub, ok := lookupStub(t)
		if !ok {
			return nil, fmt.Errorf("%w: %s (run realmgen on its package)", ErrNoStub, t)
		}
		pt.stub = stub
	}

	s.count++
	pt.Seq = s.count
	s.byType[t] = pt
	s.bySig[c.Signature] = append(s.bySig[c.Signature], pt)
	s.log.Debugf("synthesized proxy type #%d for %s", pt.Seq, t)
	return pt, nil
}

// sameShapes compares method func types by identity; the signature string
// alone cannot tell apart same-named types from different packages.
func sameShapes(a, b *Contract) bool {
	if a.Kind != b.Kind || len(a.Methods) != len(b.Methods) {
		return false
	}
	for i := range a.Methods {
		if a.Methods[i].Name != b.Methods[i].Name || a.Methods[i].fn != b.Methods[i].fn {
			return false
		}
	}
	return true
}

// materialize produces the typed proxy value of contract type t for inst.
func (pt *ProxyType) materialize(inst *Instance, t reflect.Type) (any, error) {
	if pt.Contract.Kind == FuncsContract {
		return fillFuncs(inst, t).Interface(), nil
	}

	v := pt.stub(inst)
	if !reflect.TypeOf(v).Implements(t) {
		return nil, fmt.Errorf("%w: stub %T does not implement %s", ErrNoStub, v, t)
	}
	return v, nil
}
