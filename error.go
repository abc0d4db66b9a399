package allosaur

import (
	"fmt"

	"go.dedis.ch/allosaur/accumulator"
	"golang.org/x/xerrors"
)

var (
	// ErrDuplicateMember is returned when adding an element that is
	// already accumulated.
	ErrDuplicateMember = xerrors.New("duplicate member")
	// ErrUnknownMember is returned when deleting, or asking a witness for,
	// an element that is not accumulated.
	ErrUnknownMember = xerrors.New("unknown member")
	// ErrEpochUnavailable is returned for epochs that are pruned or not yet
	// reached.
	ErrEpochUnavailable = xerrors.New("epoch unavailable")
	// ErrStaleShare marks a contribution computed for other epochs or from
	// an outdated replica.
	ErrStaleShare = xerrors.New("stale share")
	// ErrMembershipRevoked is returned when an update deletes the owner of
	// the witness.
	ErrMembershipRevoked = accumulator.ErrMembershipRevoked
	// ErrInsufficientShares is returned when less than the threshold of
	// valid contributions is available.
	ErrInsufficientShares = xerrors.New("insufficient shares")
	// ErrMalformedEncoding is returned for bytes that do not decode.
	ErrMalformedEncoding = accumulator.ErrMalformedEncoding
	// ErrWrongTrapdoor is returned when the trapdoor does not match the
	// public key of the server.
	ErrWrongTrapdoor = xerrors.New("trapdoor does not match public key")
	// ErrEpochMismatch is returned when an update does not start at the
	// epoch of the witness.
	ErrEpochMismatch = xerrors.New("epoch mismatch")
	// ErrBatchTooLarge is returned when a single epoch holds more changes
	// than the shared powers of the trapdoor allow.
	ErrBatchTooLarge = xerrors.New("batch too large")
	// ErrInconsistentShares is returned when two subsets of shares
	// interpolate to different results.
	ErrInconsistentShares = xerrors.New("inconsistent shares")
	// ErrInvalidUpdate is returned when an updated witness does not verify.
	ErrInvalidUpdate = xerrors.New("invalid update")
	// ErrInvalidWitness is returned for issued witnesses that do not
	// verify.
	ErrInvalidWitness = xerrors.New("invalid witness")
	// ErrNoWitness is returned by users that did not get a witness yet.
	ErrNoWitness = xerrors.New("no witness")
	// ErrCorruptState is returned when stored records do not replay to the
	// stored value.
	ErrCorruptState = xerrors.New("corrupt state")
)

// Error is a wrapper around an error that remembers where it was created,
// so that the location is printed with "%+v".
type Error struct {
	err   error
	msg   string
	frame xerrors.Frame
}

// ErrorOrNil returns nil for a nil error, else the error wrapped with the
// message and the location of the caller.
func ErrorOrNil(err error, msg string) error {
	return ErrorOrNilSkip(err, msg, 1)
}

// ErrorOrNilSkip is ErrorOrNil with the location taken skip callers up.
func ErrorOrNilSkip(err error, msg string, skip int) error {
	if err == nil {
		return nil
	}
	return &Error{
		err:   err,
		msg:   msg,
		frame: xerrors.Caller(skip),
	}
}

// WrapError only adds the location of the caller.
func WrapError(err error) error {
	return ErrorOrNilSkip(err, "", 2)
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg + ": " + fmt.Sprintf("%v", e.err)
	}
	return fmt.Sprintf("%v", e.err)
}

// Unwrap returns the next error in the chain.
func (e *Error) Unwrap() error {
	return e.err
}

// Format prints the error to the formatter.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// FormatError prints the location with "%+v".
func (e *Error) FormatError(p xerrors.Printer) error {
	if e.msg != "" {
		p.Printf("%s: %v", e.msg, e.err)
	} else {
		p.Printf("%v", e.err)
	}

	if p.Detail() {
		e.frame.Format(p)
		p.Printf("%+v", e.err)
	}
	return nil
}
