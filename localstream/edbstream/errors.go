package edbstream

import "github.com/andreyvit/streamrep/localstream"

// ErrAlreadyFollowing is localstream.ErrAlreadyFollowing itself, so the
// edb-backed implementation matches it under errors.Is.
var ErrAlreadyFollowing = localstream.ErrAlreadyFollowing
