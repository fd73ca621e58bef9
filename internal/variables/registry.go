package variables

import (
	"sync"

	"github.com/ocppsim/simulator/pkg/models"
)

// entry is the registry's internal storage unit: the attribute list for
// one (component, variable) pair. Entries defined at init and entries
// inserted by self-healing are stored alike.
type entry struct {
	component  models.Component
	variable   models.Variable
	attributes map[models.AttributeType]*models.VariableAttribute
}

// Registry is the process-wide(ish) component/variable/attribute store for
// a single station. §5 notes the variable-definition *registry* is
// process-wide and read-mostly after init, but each station's resolved
// attribute values are its own — this type is instantiated once per
// station with a shared definition set copied in at build time.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry // key: component.Key()+"|"+variable.Key()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func entryKey(c models.Component, v models.Variable) string {
	return c.Key() + "|" + v.Key()
}

// Define registers a (component, variable) with its attribute set. Intended
// to be called at station build time from the station's Template/persisted
// configuration.
func (r *Registry) Define(component models.Component, variable models.Variable, attrs []models.VariableAttribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[models.AttributeType]*models.VariableAttribute, len(attrs))
	for i := range attrs {
		a := attrs[i]
		a.SetDefault(a.Value)
		m[a.Type] = &a
	}
	r.entries[entryKey(component, variable)] = &entry{component: component, variable: variable, attributes: m}
}

// lookup resolves a (component, variable) entry, reporting separately
// whether the component and variable are known at all — GetVariables and
// SetVariables need to distinguish UnknownComponent from UnknownVariable.
func (r *Registry) lookup(component models.Component, variable models.Variable) (*entry, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[entryKey(component, variable)]; ok {
		return e, true, true
	}

	componentKnown := false
	for _, e := range r.entries {
		if e.component.Key() == component.Key() {
			componentKnown = true
			break
		}
	}
	return nil, componentKnown, false
}

// selfHeal inserts an empty-valued ReadWrite string attribute of the
// requested attribute type when none is stored for it, creating the
// (component, variable) entry if needed (§4.6 "the manager self-heals").
func (r *Registry) selfHeal(component models.Component, variable models.Variable, attrType models.AttributeType) *models.VariableAttribute {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(component, variable)
	e, ok := r.entries[key]
	if !ok {
		e = &entry{component: component, variable: variable, attributes: make(map[models.AttributeType]*models.VariableAttribute)}
		r.entries[key] = e
	}
	attr := &models.VariableAttribute{
		Type:       attrType,
		Value:      "",
		Mutability: models.MutabilityReadWrite,
		DataType:   models.DataTypeString,
	}
	attr.SetDefault("")
	e.attributes[attrType] = attr
	return attr
}

// ResetRuntimeOverrides restores every non-persistent attribute to its
// init-time default (§9 "explicit resetRuntimeOverrides() entry point").
func (r *Registry) ResetRuntimeOverrides() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		for _, attr := range e.attributes {
			attr.ResetIfVolatile()
		}
	}
}

// Snapshot returns all entries as VariableAttributeEntry records, for
// persistence via contracts.ConfigurationStore.
func (r *Registry) Snapshot() []models.VariableAttributeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.VariableAttributeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		attrs := make([]models.VariableAttribute, 0, len(e.attributes))
		for _, a := range e.attributes {
			attrs = append(attrs, *a)
		}
		out = append(out, models.VariableAttributeEntry{Component: e.component, Variable: e.variable, Attributes: attrs})
	}
	return out
}
