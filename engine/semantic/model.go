package semantic

// Vector field names within the readings collection. Every reading carries
// both: one encodes the full address, the other a synthesized sentence
// combining address, value, and units.
const (
	FieldAddress  = "address"
	FieldCombined = "combined"
)

// Row is a store-native result row: the reading ID, the L2 distance for
// similarity searches (0 for scalar queries), and the scalar payload with
// values already unboxed from the wire value union. Payload values are
// string, int64, float64, or bool; absent fields are simply absent; the
// retrieval normalizer applies zero-value defaults.
type Row struct {
	ID      string
	Score   float32
	Payload map[string]any
}
