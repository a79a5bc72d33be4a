package metrics

// Prometheus metric namespaces and subsystems.
const (
	namespaceAtlas = "atlas"

	subsystemSequencer = "sequencer"
	subsystemExecutor  = "checkpoint_executor"
)
