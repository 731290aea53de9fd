package tor

import "errors"

var (
	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not
	// speak unauthenticated SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to SOCKS5 proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to SOCKS5 proxy")

	// ErrInvalidProxyAddress is returned when the proxy address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTorNotRunning is returned when a client is requested from an
	// embedded daemon that was not started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus is the result of Client.CheckConnection.
type ProxyStatus int

const (
	// ProxyStatusOK indicates a working SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota
	// ProxyStatusWrongType indicates the peer is not a SOCKS5 proxy.
	ProxyStatusWrongType
	// ProxyStatusCannotConnect indicates the proxy is unreachable.
	ProxyStatusCannotConnect
	// ProxyStatusTimeout indicates the handshake timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
