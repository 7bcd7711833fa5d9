package compose

// State identifies a step in the run state machine.
type State string

const (
	StateIdle              State = "idle"
	StateTemplateExtracted State = "template_extracted"
	StateSpecimensResolved State = "specimens_resolved"
	StateSlotsSpliced      State = "slots_spliced"
	StateMetadataPatched   State = "metadata_patched"
	StateRepacked          State = "repacked"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// String returns the state label.
func (s State) String() string { return string(s) }

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
