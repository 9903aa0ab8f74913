// Package transport owns the single physical audio interface. A Driver opens
// the interface in output or input mode; an Adapter grants exclusive,
// lazily-opened access to a driver through leases so that only one stream
// touches the hardware at a time.
package transport
