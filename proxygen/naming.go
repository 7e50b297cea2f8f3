package proxygen

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// StubName returns the unexported forwarding type for a contract,
// e.g. "ITest" -> "iTestProxy".
func StubName(contract string) string {
	return lowerFirst(contract) + "Proxy"
}

// RegisterFuncName returns the registration func emitted for a generic
// contract, e.g. "IGeneric" -> "RegisterIGenericProxy".
func RegisterFuncName(contract string) string {
	return "Register" + contract + "Proxy"
}

// DefaultOutput is the file realmgen writes when no -o is given.
func DefaultOutput(pkgName string) string {
	return pkgName + "_realmproxy.go"
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

// paramName picks the identifier a parameter gets in the stub. Unnamed and
// blank parameters are numbered; names that would shadow the receiver or
// the package aliases are suffixed.
func paramName(name string, i int) string {
	switch name {
	case "", "_":
		return fmt.Sprintf("arg%d", i)
	case receiver, "err", "proxy", "realm":
		return name + "_"
	}
	return name
}
