package jobs

import "errors"

// ErrExternalService indicates that the generation service returned a
// non-success response or was unreachable at a point where the failure
// matters (initiation, stream opening). Transient failures during status
// polling are NOT reported with this error; they surface as StatusUnknown.
var ErrExternalService = errors.New("external generation service failure")
