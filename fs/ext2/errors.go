package ext2

import "novaos/kernel"

// Package-level errors are allocated once, following kernel.Error's own
// convention (kernel/kernel.go), rather than built fresh on every failing
// call.
var (
	errNotDirectory        = &kernel.Error{Module: "ext2", Message: "inode is not a directory"}
	errNoSuchEntry         = &kernel.Error{Module: "ext2", Message: "no directory entry with that name"}
	errDeepIndirection     = &kernel.Error{Module: "ext2", Message: "doubly/triply indirect blocks are not supported"}
	errInodeOutOfRange     = &kernel.Error{Module: "ext2", Message: "inode number is out of range"}
	errNoRoomForEntry      = &kernel.Error{Module: "ext2", Message: "no directory block has room for a new entry"}
	errNameTooLong         = &kernel.Error{Module: "ext2", Message: "directory entry name exceeds 255 bytes"}
)
