package rpc

import (
	"reflect"
	"sort"
	"unicode"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/verif-proxy/errors"
)

// Registry is the table of namespaces served by the proxy. It is built once at startup and
// read-only afterwards. Method names follow go-ethereum: the namespace, an underscore and the
// Go method name with a lower case first letter.
type Registry struct {
	apis    []gethrpc.API
	methods map[string]string
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]string)}
}

// Register serves the exported methods of receiver under namespace. A method name that is
// already taken fails with ServerStartup and leaves the registry unchanged.
func (r *Registry) Register(namespace string, receiver interface{}) error {
	names := methodNames(namespace, receiver)
	if len(names) == 0 {
		return errors.ServerStartup(nil, "namespace %s has no methods", namespace)
	}
	for _, name := range names {
		if _, found := r.methods[name]; found {
			return errors.ServerStartup(nil, "method %s registered twice", name)
		}
	}
	for _, name := range names {
		r.methods[name] = namespace
	}
	r.apis = append(r.apis, gethrpc.API{Namespace: namespace, Service: receiver})
	return nil
}

// Merge adds every namespace of other. A method present in both fails with ServerStartup.
func (r *Registry) Merge(other *Registry) error {
	for name := range other.methods {
		if _, found := r.methods[name]; found {
			return errors.ServerStartup(nil, "method %s registered twice", name)
		}
	}
	for _, api := range other.apis {
		if err := r.Register(api.Namespace, api.Service); err != nil {
			return err
		}
	}
	return nil
}

// Methods returns the registered names, sorted.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newServer registers every namespace on a fresh go-ethereum RPC server.
func (r *Registry) newServer() (*gethrpc.Server, error) {
	server := gethrpc.NewServer()
	for _, api := range r.apis {
		if err := server.RegisterName(api.Namespace, api.Service); err != nil {
			server.Stop()
			return nil, errors.ServerStartup(err, "failed to register namespace %s", api.Namespace)
		}
	}
	return server, nil
}

func methodNames(namespace string, receiver interface{}) []string {
	typ := reflect.TypeOf(receiver)
	names := make([]string, 0, typ.NumMethod())
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if method.PkgPath != "" {
			continue
		}
		name := []rune(method.Name)
		name[0] = unicode.ToLower(name[0])
		names = append(names, namespace+"_"+string(name))
	}
	return names
}
