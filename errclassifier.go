// SPDX-License-Identifier: GPL-3.0-or-later

package coro

import "github.com/bassosimone/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") that facilitate systematic analysis of adapter and I/O errors.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	op.ErrClassifier = ErrClassifierFunc(errclass.New)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier maps this package's own sentinel errors to short
// labels consistent with [errclass]'s naming convention, then falls back
// to [errclass.New] for adapter- and OS-level I/O errors.
var DefaultErrClassifier = ErrClassifierFunc(classifyRuntimeErr)

func classifyRuntimeErr(err error) string {
	switch err {
	case nil:
		return ""
	case ErrCanceled:
		return "ECANCELED"
	case ErrTimedout:
		return errclass.ETIMEDOUT
	case ErrPipe:
		return "EPIPE"
	case ErrMsgsize:
		return "EMSGSIZE"
	case ErrBusy:
		return "EBUSY"
	case ErrBadf:
		return "EBADF"
	case ErrInval:
		return "EINVAL"
	case ErrNomem:
		return "ENOMEM"
	case ErrNotsup:
		return "ENOTSUP"
	}
	return errclass.New(err)
}
