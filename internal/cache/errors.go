package cache

// ValidationError reports malformed input rejected before any store
// access.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
