package dap

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// Instance is a running dap module. Once created it is owned by the registry
// entry that produced it and dropped on unload or shutdown; instances are
// never shared across daps.
type Instance interface {
	// ID uniquely identifies this instantiation; a reloaded dap gets a
	// fresh ID.
	ID() string
	Close() error
}

// Engine turns compiled module source and an import set into a running
// instance. The registry treats it as an opaque external capability so the
// lifecycle logic can be tested without a real module runtime.
type Engine interface {
	Instantiate(ctx context.Context, name string, source []byte, imports map[string]any) (Instance, error)
}

// GojaEngine executes JavaScript server modules in an embedded goja runtime.
type GojaEngine struct{}

// NewGojaEngine constructs the production module engine.
func NewGojaEngine() *GojaEngine {
	return &GojaEngine{}
}

// Instantiate evaluates the module source in a fresh runtime. The import set
// is exposed to the module as the global `host` object; a module declaring a
// capability the host did not pass simply finds it absent.
func (e *GojaEngine) Instantiate(ctx context.Context, name string, source []byte, imports map[string]any) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	exports := vm.NewObject()
	module := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("engine: prepare module object: %w", err)
	}
	if err := vm.Set("module", module); err != nil {
		return nil, fmt.Errorf("engine: bind module object: %w", err)
	}
	if err := vm.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("engine: bind exports object: %w", err)
	}

	host := vm.NewObject()
	for key, value := range imports {
		if err := host.Set(key, value); err != nil {
			return nil, fmt.Errorf("engine: bind import %q: %w", key, err)
		}
	}
	if err := vm.Set("host", host); err != nil {
		return nil, fmt.Errorf("engine: bind host object: %w", err)
	}

	if _, err := vm.RunScript(name, string(source)); err != nil {
		return nil, fmt.Errorf("engine: execute %s: %w", name, err)
	}

	return &gojaInstance{
		id:   uuid.NewString(),
		name: name,
		vm:   vm,
	}, nil
}

type gojaInstance struct {
	id   string
	name string
	vm   *goja.Runtime
}

func (i *gojaInstance) ID() string {
	return i.id
}

func (i *gojaInstance) Close() error {
	// Interrupt any stuck script so the runtime can be collected.
	i.vm.Interrupt("instance closed")
	i.vm = nil
	return nil
}
