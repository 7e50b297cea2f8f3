package realm

import (
	"errors"
	"fmt"
)

// Dispatch and resolution failures. Callers match them with errors.Is; the
// wrapped message carries the realm, module, class or member involved.
var (
	ErrModuleLoad          = errors.New("module load failed")
	ErrTypeNotFound        = errors.New("type not found")
	ErrConstructorNotFound = errors.New("constructor not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrAmbiguousMember     = errors.New("ambiguous member")
	ErrContractMismatch    = errors.New("contract mismatch")
	ErrRealmUnloading      = errors.New("realm is unloading")
	ErrRealmUnloaded       = errors.New("realm is unloaded")
	ErrNotCollectible      = errors.New("realm is not collectible")
	ErrRealmExists         = errors.New("realm already exists")
)

// TargetInvocationError reports a fault raised by realm-side code while it
// ran: a returned error or a recovered panic. Dispatch failures (resolution,
// marshaling, unloaded realms) are never reported with this type.
type TargetInvocationError struct {
	Realm       string
	Member      string
	Description string
	Err         error
}

func (e *TargetInvocationError) Error() string {
	return fmt.Sprintf("target invocation of %s in realm %q failed: %s", e.Member, e.Realm, e.Description)
}

func (e *TargetInvocationError) Unwrap() error {
	return e.Err
}

func newFault(realmName, member string, err error) *TargetInvocationError {
	return &TargetInvocationError{
		Realm:       realmName,
		Member:      member,
		Description: err.Error(),
		Err:         err,
	}
}

// panicError turns a recovered panic value into an error.
func panicError(p any) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", p)
}
