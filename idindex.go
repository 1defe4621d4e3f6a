package gp2midi

// idIndex maps a local tag name to the id-string -> element map for every
// element of that tag that carries an id attribute. Built in a single
// traversal, so every later reference (Bar, Voice, Beat, Note, Rhythm,
// Track lookups) resolves in O(1).
type idIndex map[string]map[string]*xmlElement

func buildIDIndex(root *xmlElement) idIndex {
	idx := make(idIndex)

	var walk func(e *xmlElement)
	walk = func(e *xmlElement) {
		if id, ok := e.attr("id"); ok {
			byID, ok := idx[e.name]
			if !ok {
				byID = make(map[string]*xmlElement)
				idx[e.name] = byID
			}
			byID[id] = e
		}
		for _, c := range e.children {
			walk(c)
		}
	}
	walk(root)

	return idx
}

// lookup resolves an ID reference to its element. The bool result is false
// for a dangling reference — callers log and skip rather than treating this
// as fatal.
func (idx idIndex) lookup(tag, id string) (*xmlElement, bool) {
	byID, ok := idx[tag]
	if !ok {
		return nil, false
	}
	e, ok := byID[id]
	return e, ok
}
