package localstream

import "errors"

// ErrAlreadyFollowing is returned by BecomeFollowingStream when the stream
// already has an active publisher; at most one exclusive writer may hold
// authority at a time.
var ErrAlreadyFollowing = errors.New("localstream: already following")
