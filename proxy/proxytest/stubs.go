package proxytest

func init() {
	RegisterIGenericProxy[*Test2]()
	RegisterIGenericProxy[int]()
	RegisterIGenericProxy[Inner]()
}
