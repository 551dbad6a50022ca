package cmd

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultRegistry holds the slash commands; packages register into it from init().
var DefaultRegistry = NewRegistry()

// Registry stores commands by name. Dispatch is left to the transport: the
// Discord bot and the offline CLI each look commands up and run them with
// their own invocation data.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds c. A second command with the same name panics, since the
// later one would silently replace the first on Discord too.
func (r *Registry) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[c.Name()]; dup {
		panic(fmt.Sprintf("cmd: command %q registered twice", c.Name()))
	}
	r.commands[c.Name()] = c
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// GetAll returns all registered commands sorted by name.
func (r *Registry) GetAll() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
