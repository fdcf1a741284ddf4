package semantic

// Match is a single nearest-neighbour hit, converted from the Qdrant response
// as soon as it crosses the client boundary. Title and Description are empty
// when the stored payload lacks them.
type Match struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
}

// VectorRecord is a single vector to store in Qdrant.
type VectorRecord struct {
	ID          string // stable catalog id, mapped to a deterministic point id
	Embedding   []float32
	Title       string
	Description string
}

// Payload keys written for every point.
const (
	payloadBugID       = "bug_id"
	payloadTitle       = "title"
	payloadDescription = "description"
	payloadNamespace   = "namespace"
)
