package gatekeep

// Context carries the runtime facts a single evaluation is resolved
// against. It is built fresh by the caller for each evaluation, never
// mutated, and never retained by a registry.
//
// Axes is an open-ended map of custom targeting dimensions (axis id to
// axis value id) beyond the built-in locale, platform, and version fields.
type Context struct {
	Locale   string
	Platform string
	Version  Version
	StableID StableID
	Axes     map[string]string
}

// Axis returns the context's value for the given axis id.
func (c Context) Axis(id string) (string, bool) {
	value, ok := c.Axes[id]
	return value, ok
}

// WithAxis returns a copy of the context with one additional axis value
// set. The receiver is not modified.
func (c Context) WithAxis(id, value string) Context {
	axes := make(map[string]string, len(c.Axes)+1)
	for k, v := range c.Axes {
		axes[k] = v
	}
	axes[id] = value
	c.Axes = axes
	return c
}
