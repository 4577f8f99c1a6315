package forecast

import "errors"

var (
	// ErrSchema is returned when transaction input does not match the column
	// contract. It is always fatal for a run.
	ErrSchema = errors.New("transaction schema violation")

	// ErrPrecondition is returned when a stage is fed a value that was not
	// produced by the stage before it.
	ErrPrecondition = errors.New("stage precondition violated")

	// ErrShapeMismatch is returned by Build when the prediction and its row
	// and column labels differ in size.
	ErrShapeMismatch = errors.New("prediction shape mismatch")

	// ErrDuplicateKey is returned when two prediction rows share a bucket
	// and location.
	ErrDuplicateKey = errors.New("duplicate row key")

	// ErrLookaheadUnavailable is returned by the outlier corrector when the
	// forecast has no column on the lookahead day.
	ErrLookaheadUnavailable = errors.New("lookahead date not present in forecast")
)
