package cluster

import "errors"

var (
	// ErrNodeNotFound is returned when a node id is not in the membership
	ErrNodeNotFound = errors.New("node not found in membership")

	// ErrNoSelfAddress is returned when no usable local IPv4 address exists
	ErrNoSelfAddress = errors.New("no non-loopback IPv4 address found")
)
