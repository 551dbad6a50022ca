// Package cmd is the command core shared by every transport. A command has
// a name, a description and Run; the Discord bot and the offline CLI wrap it
// with their own registration and invocation data.
package cmd

import "context"

// Invocation is what a transport hands to Run: positional Args for the CLI,
// and Data for transport state such as the slash interaction context.
type Invocation struct {
	Args []string
	Data interface{}
}

type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
