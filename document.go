package yamlid

import (
	"regexp"
	"strconv"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const mergeKey = "<<"

var anchorPattern = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

// Report describes object identity usage in a document.
type Report struct {
	Anchors    int
	Aliases    int
	IDs        int
	References int
	Unresolved []string
	Duplicates []string
}

// OK reports whether the document has no broken references.
func (r *Report) OK() bool {
	return len(r.Unresolved) == 0 && len(r.Duplicates) == 0
}

// Inspect counts anchors, aliases, id properties and id references
// found under refKeys. References are checked against ids defined
// anywhere in the document.
func Inspect(doc *yaml.Node, property string, refKeys []string) *Report {
	r := &Report{}
	ids := make(map[string]bool)
	var refs []string
	refKeySet := stringSet(refKeys)

	var visit func(n *yaml.Node)
	visit = func(n *yaml.Node) {
		if n.Anchor != "" {
			r.Anchors++
		}
		switch n.Kind {
		case yaml.AliasNode:
			r.Aliases++
			if n.Alias == nil {
				r.Unresolved = append(r.Unresolved, n.Value)
			}
			return
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				key, value := n.Content[i], n.Content[i+1]
				if key.Value == property && value.Kind == yaml.ScalarNode {
					if ids[value.Value] {
						r.Duplicates = append(r.Duplicates, value.Value)
					}
					ids[value.Value] = true
					r.IDs++
				} else if refKeySet[key.Value] {
					for _, ref := range referenceScalars(value) {
						refs = append(refs, ref.Value)
					}
				}
			}
		}
		for _, c := range n.Content {
			visit(c)
		}
	}
	visit(doc)

	r.References = len(refs)
	for _, ref := range refs {
		if !ids[ref] {
			r.Unresolved = append(r.Unresolved, ref)
		}
	}
	return r
}

// ToPropertyIdentity rewrites anchored mappings of doc into mappings
// with a leading id property, and aliases to them into the id scalar.
// Aliases to other nodes and merge keys are replaced by copies.
func ToPropertyIdentity(doc *yaml.Node, property string) error {
	if property == "" {
		property = DefaultIDProperty
	}

	// owner maps an anchored node to the mapping carrying the object id,
	// the anchor can sit on the mapping or on its first key.
	owner := make(map[*yaml.Node]*yaml.Node)
	ids := make(map[*yaml.Node]string)
	referenced := make(map[*yaml.Node]bool)
	var collect func(n *yaml.Node, merge bool)
	collect = func(n *yaml.Node, merge bool) {
		switch n.Kind {
		case yaml.AliasNode:
			if obj, ok := owner[n.Alias]; ok && !merge {
				referenced[obj] = true
			}
			return
		case yaml.MappingNode:
			if anchor := anchorOf(n); anchor != "" {
				if n.Anchor != "" {
					owner[n] = n
				} else {
					owner[n.Content[0]] = n
				}
				ids[n] = anchor
			}
			for i := 0; i+1 < len(n.Content); i += 2 {
				collect(n.Content[i], false)
				collect(n.Content[i+1], n.Content[i].Value == mergeKey)
			}
			return
		}
		for _, c := range n.Content {
			collect(c, false)
		}
	}
	collect(doc, false)

	clone := func(n *yaml.Node) *yaml.Node {
		return copyNode(n, func(orig, c *yaml.Node) {
			if referenced[orig] {
				removeKey(c, property)
			}
		})
	}

	expanding := make(map[*yaml.Node]bool)
	var rewrite func(n *yaml.Node, merge bool) (*yaml.Node, error)
	rewrite = func(n *yaml.Node, merge bool) (*yaml.Node, error) {
		if n.Kind == yaml.AliasNode {
			target := n.Alias
			if target == nil {
				return nil, errors.Trace(&UnresolvedReferenceError{IDs: []string{n.Value}})
			}
			obj, isObj := owner[target]
			if isObj && !merge {
				return idScalar(ids[obj]), nil
			}
			if isObj {
				target = obj
			}
			if expanding[target] {
				return nil, errors.Errorf("alias '%s' refers to an enclosing node and cannot be expanded (line %d)", n.Value, n.Line)
			}
			expanding[target] = true
			defer delete(expanding, target)
			return rewrite(clone(target), false)
		}

		if n.Kind == yaml.MappingNode && referenced[n] {
			if hasKey(n, property) {
				return nil, errors.Errorf("mapping anchored as '%s' already has key '%s' (line %d)", ids[n], property, n.Line)
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: strTag, Value: property, Style: yaml.SingleQuotedStyle}
			n.Content = append([]*yaml.Node{key, idScalar(ids[n])}, n.Content...)
		}
		n.Anchor = ""
		for i, c := range n.Content {
			merge := n.Kind == yaml.MappingNode && i%2 == 1 && n.Content[i-1].Value == mergeKey
			rc, err := rewrite(c, merge)
			if err != nil {
				return nil, errors.Trace(err)
			}
			n.Content[i] = rc
		}
		return n, nil
	}
	_, err := rewrite(doc, false)
	return errors.Trace(err)
}

// ToNativeIdentity rewrites mappings with the id property into
// anchored mappings, and id scalars found under refKeys into aliases.
// YAML aliases cannot point forward, so a reference preceding its
// definition fails.
func ToNativeIdentity(doc *yaml.Node, property string, refKeys []string) error {
	if property == "" {
		property = DefaultIDProperty
	}
	refKeySet := stringSet(refKeys)

	defs := make(map[string]bool)
	var collect func(n *yaml.Node) error
	collect = func(n *yaml.Node) error {
		if n.Kind == yaml.MappingNode {
			if id, ok := idOf(n, property); ok {
				if defs[id.Value] {
					return errors.Errorf("duplicate object id '%s' (line %d)", id.Value, id.Line)
				}
				if !anchorPattern.MatchString(id.Value) {
					return errors.Errorf("object id '%s' cannot be used as an anchor (line %d)", id.Value, id.Line)
				}
				defs[id.Value] = true
			}
		}
		for _, c := range n.Content {
			if err := collect(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(doc); err != nil {
		return errors.Trace(err)
	}

	anchored := make(map[string]*yaml.Node)
	var missing []string
	var rewrite func(n *yaml.Node) error
	rewrite = func(n *yaml.Node) error {
		if n.Kind != yaml.MappingNode {
			for _, c := range n.Content {
				if err := rewrite(c); err != nil {
					return err
				}
			}
			return nil
		}
		if id, ok := idOf(n, property); ok {
			removeKey(n, property)
			target := n
			if len(n.Content) > 0 {
				target = n.Content[0]
			}
			target.Anchor = id.Value
			anchored[id.Value] = target
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			value := n.Content[i+1]
			if refKeySet[n.Content[i].Value] {
				for _, ref := range referenceScalars(value) {
					if !defs[ref.Value] {
						missing = append(missing, ref.Value)
						continue
					}
					target, ok := anchored[ref.Value]
					if !ok {
						return errors.Errorf("reference to '%s' precedes its definition and cannot be an alias (line %d)", ref.Value, ref.Line)
					}
					*ref = yaml.Node{Kind: yaml.AliasNode, Value: ref.Value, Alias: target, Line: ref.Line, Column: ref.Column}
				}
			}
			if err := rewrite(value); err != nil {
				return err
			}
		}
		return nil
	}
	if err := rewrite(doc); err != nil {
		return errors.Trace(err)
	}
	if len(missing) > 0 {
		return errors.Trace(&UnresolvedReferenceError{IDs: missing})
	}
	return nil
}

// referenceScalars returns the scalars of a reference value,
// which is either a scalar or a sequence of scalars.
func referenceScalars(n *yaml.Node) []*yaml.Node {
	switch n.Kind {
	case yaml.ScalarNode:
		if isNull(n) {
			return nil
		}
		return []*yaml.Node{n}
	case yaml.SequenceNode:
		var res []*yaml.Node
		for _, c := range n.Content {
			if c.Kind == yaml.ScalarNode && !isNull(c) {
				res = append(res, c)
			}
		}
		return res
	}
	return nil
}

func anchorOf(mapping *yaml.Node) string {
	if mapping.Anchor != "" {
		return mapping.Anchor
	}
	if len(mapping.Content) > 0 {
		return mapping.Content[0].Anchor
	}
	return ""
}

func idScalar(id string) *yaml.Node {
	if _, err := strconv.Atoi(id); err == nil {
		return scalarNode(intTag, id)
	}
	return scalarNode(strTag, id)
}

func idOf(mapping *yaml.Node, property string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == property && mapping.Content[i+1].Kind == yaml.ScalarNode {
			return mapping.Content[i+1], true
		}
	}
	return nil, false
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

func removeKey(mapping *yaml.Node, key string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}

// copyNode deep copies n without anchors, fix is called for every
// copied mapping. Aliases inside the copy keep pointing to the
// original targets.
func copyNode(n *yaml.Node, fix func(orig, c *yaml.Node)) *yaml.Node {
	c := *n
	c.Anchor = ""
	c.Content = make([]*yaml.Node, len(n.Content))
	for i, child := range n.Content {
		if child.Kind == yaml.AliasNode {
			alias := *child
			c.Content[i] = &alias
			continue
		}
		c.Content[i] = copyNode(child, fix)
	}
	if n.Kind == yaml.MappingNode && fix != nil {
		fix(n, &c)
	}
	return &c
}

func stringSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}
