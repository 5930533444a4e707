package planner

import "errors"

// ErrBadProfile is returned by normalizeFirstOrder when it is not given
// exactly three of its five arguments — the system is neither over- nor
// under-determined only at exactly three knowns.
var ErrBadProfile = errors.New("planner: first-order profile needs exactly three of v0, v, a, t, x")
