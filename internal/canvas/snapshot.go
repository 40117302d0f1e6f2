package canvas

// snapshot is the persisted canvas payload: the open-artifact map plus the
// active pointer, JSON-encoded under one store key. Iteration order is not
// stored; restore rebuilds it from the recorded positions.
type snapshot struct {
	Artifacts        map[string]State `json:"artifacts"`
	ActiveArtifactID *string          `json:"active_artifact_id"`
}
