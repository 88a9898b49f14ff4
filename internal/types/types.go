package types

// Task pairs a pool-scoped identifier with an opaque input value.
// A Task is created once by the pool on submission and never mutated
// afterwards; it is handed to exactly one worker.
type Task[I any] struct {
	ID    uint64
	Input I
}

// NewTask creates a task carrying the given id and input.
func NewTask[I any](id uint64, input I) Task[I] {
	return Task[I]{ID: id, Input: input}
}

// Outcome is the tagged result stored for a task id.
//
// Fields:
//   - Value: The output produced by the computation (zero value if Err is set)
//   - Err: The failure cause, nil on success
type Outcome[O any] struct {
	Value O
	Err   error
}

// Ok wraps a successful output.
func Ok[O any](v O) Outcome[O] {
	return Outcome[O]{Value: v}
}

// Fail wraps a failure. The value is the zero value of O.
func Fail[O any](err error) Outcome[O] {
	return Outcome[O]{Err: err}
}

// Failed reports whether the outcome carries an error.
func (o Outcome[O]) Failed() bool {
	return o.Err != nil
}

// Unwrap returns the value and error as a pair.
func (o Outcome[O]) Unwrap() (O, error) {
	return o.Value, o.Err
}
