// Package store holds booking directories backing the signaling server.
package store

import "errors"

var ErrBookingNotFound = errors.New("booking not found")
