package netutil

import (
	"net"
	"time"
)

// WaitForListener dials the given TCP addr until it connects or the timeout
// elapses, returning nil or the last dial error. Meant for tests and scripts
// that need the server up before proceeding.
func WaitForListener(addr string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for time.Since(start) < timeout {
		if lastErr = Poke(addr); lastErr == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return lastErr
}

// Poke dials addr and immediately closes the connection. An accept loop
// blocked in Accept observes the connection and gets a chance to re-check
// its stop flag.
func Poke(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err == nil {
		err = conn.Close()
	}
	return err
}
