package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultBindAddress is the address listeners bind (all IPv4
	// interfaces).
	DefaultBindAddress = "0.0.0.0"

	// DefaultKeepAlive is the SSH keepalive interval.
	DefaultKeepAlive = 30 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 10 * time.Second

	// DefaultWorkers is the number of goroutines draining the reactor.
	DefaultWorkers = 1

	// DefaultDriver is the transfer driver.
	DefaultDriver = "netpoll"

	// DefaultAuthName is the name the client sends and the server
	// allows when nothing else is configured.
	DefaultAuthName = "auth_name"

	// DefaultMaxMessage bounds one authorization request.
	DefaultMaxMessage = 1024

	// DefaultRetries is how many extra connect attempts the client makes.
	DefaultRetries = 3

	// DefaultRetryDelay is the first pause between connect attempts.
	DefaultRetryDelay = 200 * time.Millisecond
)
