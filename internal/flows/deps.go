package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Issue  IssueDeps
	Rotate RotateDeps
	Revoke RevokeDeps
}
