package types

// Event is the canonical payload attached to every committed state
// transition. Attributes are string-encoded so downstream indexers can
// consume them without module-specific decoding.
type Event struct {
	Type       string
	Attributes map[string]string
}
