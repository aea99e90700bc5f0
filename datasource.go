package mrengine

// DataSource enumerates an input corpus and hands out Splits for the map
// phase, per spec.md §4.1. NextSplit must be safe for concurrent use by
// multiple map workers: implementations serialize internally.
type DataSource interface {
	// NextSplit returns the next split and true, or false once the
	// source is exhausted. Calling NextSplit again
	// after it has returned false must keep returning false (idempotent).
	NextSplit() (Split, bool, error)

	// SchemaVersion identifies the concrete MapKey/MapValue types this
	// DataSource was built for, as a semver string (e.g. "v1.0.0"). Job
	// construction checks this against its own expected major version.
	SchemaVersion() string
}

// SkipReporter is an optional DataSource capability. A DataSource that
// drops an unreadable input during planning, before it ever becomes a
// Split (per spec.md §4.1's "unreadable file ⇒ logged, skipped, counted
// as zero splits"), implements SkipReporter so the Job can still count
// those files as failed map keys: spec.md §8 scenario 5 requires
// map_key_errors >= 1 for an unreadable file alongside a readable one,
// which a file that never produced a Split could otherwise never
// trigger.
type SkipReporter interface {
	// Skipped returns the identifiers of inputs dropped during planning.
	// Valid once NextSplit has been called at least once.
	Skipped() []string
}
