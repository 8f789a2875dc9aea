package replication

import "errors"

var errNotConnected = errors.New("replication endpoint not connected")
