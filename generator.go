package yamlid

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// AnyScope is the default identity scope. Generators bound to it
// share one id space for every type that does not declare a scope.
var AnyScope = reflect.TypeOf((*interface{})(nil)).Elem()

// IDKey identifies an object within one session.
// Two objects are the same reference if and only if
// their keys are equal.
type IDKey struct {
	Generator reflect.Type
	Scope     reflect.Type
	ID        interface{}
}

func (k IDKey) String() string {
	return fmt.Sprintf("%v", k.ID)
}

// IDGenerator produces object ids for one serialization session.
type IDGenerator interface {
	// GenerateID returns the id for a newly encountered object.
	GenerateID(obj interface{}) interface{}
	// Scope returns the type the generated ids are unique within.
	Scope() reflect.Type
	// CanUseFor reports whether the generator can serve
	// objects declared with gen.
	CanUseFor(gen IDGenerator) bool
	// ForScope returns a generator bound to scope.
	ForScope(scope reflect.Type) IDGenerator
	// NewForSerialization returns a generator with a fresh state.
	NewForSerialization(ctx interface{}) IDGenerator
	// Key returns the resolution key of id.
	Key(id interface{}) IDKey
}

// SameGenerator reports whether a and b are of the same concrete
// type and bound to the same scope.
func SameGenerator(a, b IDGenerator) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.TypeOf(a) == reflect.TypeOf(b) && a.Scope() == b.Scope()
}

// NewIDKey builds the key of id generated by gen.
func NewIDKey(gen IDGenerator, id interface{}) IDKey {
	return IDKey{
		Generator: reflect.TypeOf(gen),
		Scope:     gen.Scope(),
		ID:        id,
	}
}

func scopeOrAny(scope reflect.Type) reflect.Type {
	if scope == nil {
		return AnyScope
	}
	return scope
}

// IntSequenceGenerator generates sequential integer ids starting at 1.
type IntSequenceGenerator struct {
	scope reflect.Type
	next  int
}

// NewIntSequenceGenerator creates a generator bound to AnyScope.
func NewIntSequenceGenerator() *IntSequenceGenerator {
	return &IntSequenceGenerator{scope: AnyScope, next: 1}
}

func (g *IntSequenceGenerator) GenerateID(obj interface{}) interface{} {
	id := g.next
	g.next++
	return id
}

func (g *IntSequenceGenerator) Scope() reflect.Type {
	return g.scope
}

func (g *IntSequenceGenerator) CanUseFor(gen IDGenerator) bool {
	return SameGenerator(g, gen)
}

func (g *IntSequenceGenerator) ForScope(scope reflect.Type) IDGenerator {
	scope = scopeOrAny(scope)
	if g.scope == scope {
		return g
	}
	return &IntSequenceGenerator{scope: scope, next: 1}
}

func (g *IntSequenceGenerator) NewForSerialization(ctx interface{}) IDGenerator {
	return &IntSequenceGenerator{scope: g.scope, next: 1}
}

func (g *IntSequenceGenerator) Key(id interface{}) IDKey {
	return NewIDKey(g, id)
}

// PrefixIDGenerator generates "id0", "id1", ... labels.
type PrefixIDGenerator struct {
	scope reflect.Type
	next  int
}

// NewPrefixIDGenerator creates a generator bound to AnyScope.
func NewPrefixIDGenerator() *PrefixIDGenerator {
	return &PrefixIDGenerator{scope: AnyScope}
}

func (g *PrefixIDGenerator) GenerateID(obj interface{}) interface{} {
	id := fmt.Sprintf("id%d", g.next)
	g.next++
	return id
}

func (g *PrefixIDGenerator) Scope() reflect.Type {
	return g.scope
}

func (g *PrefixIDGenerator) CanUseFor(gen IDGenerator) bool {
	return SameGenerator(g, gen)
}

func (g *PrefixIDGenerator) ForScope(scope reflect.Type) IDGenerator {
	scope = scopeOrAny(scope)
	if g.scope == scope {
		return g
	}
	return &PrefixIDGenerator{scope: scope}
}

func (g *PrefixIDGenerator) NewForSerialization(ctx interface{}) IDGenerator {
	return &PrefixIDGenerator{scope: g.scope}
}

func (g *PrefixIDGenerator) Key(id interface{}) IDKey {
	return NewIDKey(g, id)
}

// UUIDGenerator generates random UUID strings. It keeps no state,
// the ids are unique across sessions.
type UUIDGenerator struct {
	scope reflect.Type
}

// NewUUIDGenerator creates a generator bound to AnyScope.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{scope: AnyScope}
}

func (g *UUIDGenerator) GenerateID(obj interface{}) interface{} {
	return uuid.New().String()
}

func (g *UUIDGenerator) Scope() reflect.Type {
	return g.scope
}

func (g *UUIDGenerator) CanUseFor(gen IDGenerator) bool {
	return SameGenerator(g, gen)
}

func (g *UUIDGenerator) ForScope(scope reflect.Type) IDGenerator {
	scope = scopeOrAny(scope)
	if g.scope == scope {
		return g
	}
	return &UUIDGenerator{scope: scope}
}

func (g *UUIDGenerator) NewForSerialization(ctx interface{}) IDGenerator {
	return &UUIDGenerator{scope: g.scope}
}

func (g *UUIDGenerator) Key(id interface{}) IDKey {
	return NewIDKey(g, id)
}
