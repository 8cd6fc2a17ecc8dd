package types

import "net"

// TLSManager hands the HTTP server a listener that terminates TLS.
type TLSManager interface {
	LifecycleManager
	Serve(addr string) (net.Listener, error)
}
