// Package registry maps task names from job payloads onto transformer capabilities
package registry

import (
	"fmt"
	"slices"
	"unicode"
	"unicode/utf8"

	"github.com/UnendingLoop/ImageServer/internal/model"
)

// Capability is a named transformation together with the parameters it accepts.
type Capability struct {
	Name   string
	Params []string
}

// Provider advertises the capabilities a transformer implements.
type Provider interface {
	Capabilities() []Capability
}

// Registry is filled once at startup and only read afterwards, so concurrent
// lookups need no locking.
type Registry struct {
	caps map[string]Capability
}

func New(caps ...Capability) *Registry {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		c.Name = Normalize(c.Name)
		r.caps[c.Name] = c
	}
	return r
}

// FromProvider builds a registry from everything p advertises.
func FromProvider(p Provider) *Registry {
	return New(p.Capabilities()...)
}

// Normalize upper-cases the first letter of name: "resize" and "Resize" are the same task.
func Normalize(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (Capability, error) {
	c, ok := r.caps[Normalize(name)]
	if !ok || name == "" {
		return Capability{}, fmt.Errorf("%w: %q is not a valid task for the manipulator", model.ErrUnknownTask, name)
	}
	return c, nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names lists registered task names in sorted order.
func (r *Registry) Names() []string {
	res := make([]string, 0, len(r.caps))
	for _, c := range r.caps {
		res = append(res, c.Name)
	}
	slices.Sort(res)
	return res
}
