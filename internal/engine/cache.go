package engine

// attachmentCache tracks which connections and files are currently attached
// to the engine and under what name. It is not safe for concurrent use on
// its own; the session mutex guards all access.
type attachmentCache struct {
	// byID maps connection/file ID to the engine object name
	// (database alias, secret name, or view name).
	byID map[string]string
	// byName is the inverse mapping.
	byName map[string]string
}

func newAttachmentCache() *attachmentCache {
	return &attachmentCache{
		byID:   make(map[string]string),
		byName: make(map[string]string),
	}
}

func (c *attachmentCache) get(id string) (string, bool) {
	name, ok := c.byID[id]
	return name, ok
}

func (c *attachmentCache) idFor(name string) (string, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// put records a successful attachment. Entries are only added after the
// corresponding DDL has succeeded.
func (c *attachmentCache) put(id, name string) {
	if old, ok := c.byID[id]; ok {
		delete(c.byName, old)
	}
	c.byID[id] = name
	c.byName[name] = id
}

func (c *attachmentCache) remove(id string) {
	if name, ok := c.byID[id]; ok {
		delete(c.byName, name)
		delete(c.byID, id)
	}
}

func (c *attachmentCache) clear() {
	c.byID = make(map[string]string)
	c.byName = make(map[string]string)
}

func (c *attachmentCache) len() int {
	return len(c.byID)
}

// names returns all attached engine object names.
func (c *attachmentCache) names() []string {
	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	return out
}
