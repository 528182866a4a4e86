package data

// Dataset is an in-memory, ordered collection of examples.
type Dataset []Example

// Len returns the number of examples.
func (d Dataset) Len() int { return len(d) }

// Split reserves the first validSize examples for validation and returns
// (valid, train). A validSize at or beyond the dataset length puts
// everything in the validation split.
func Split(d Dataset, validSize int) (valid, train Dataset) {
	if validSize < 0 {
		validSize = 0
	}
	if validSize > len(d) {
		validSize = len(d)
	}
	return d[:validSize], d[validSize:]
}
