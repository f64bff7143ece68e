package contracts

import "errors"

// ErrDenied is the common class of enforcement denials. Both the sovereignty
// and delivery denial errors match it with errors.Is, which is what the
// enforcement-degrade runner branches on.
var ErrDenied = errors.New("enforcement denied")
