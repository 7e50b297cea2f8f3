package realm

import "reflect"

// Env is what realm-side code sees of its surroundings. A constructor or
// method whose first parameter (after the receiver) is an Env receives it on
// every call.
type Env struct {
	Realm  string
	Module string
	Class  string

	// TypeArgs closes the class's type parameters.
	TypeArgs TypeArgs
	// MethodTypeArgs closes a generic method's type parameters for this call.
	MethodTypeArgs TypeArgs
}

var (
	envType   = reflect.TypeFor[Env]()
	errorType = reflect.TypeFor[error]()
)
