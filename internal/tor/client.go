package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake done by CheckConnection.
const checkProxyTimeout = 2 * time.Second

// maxRedirects matches the net/http default.
const maxRedirects = 10

// Client routes crawl traffic through a SOCKS5 proxy, either an external
// one or the embedded Tor daemon.
type Client struct {
	proxyAddress string
	dialer       proxy.Dialer
	timeout      time.Duration
}

// NewClient creates a client for the SOCKS5 proxy at proxyAddress
// ("host:port"). timeout is the HTTP client timeout. The proxy is not
// contacted; call CheckConnection to verify it.
func NewClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5ProbeHost is a reserved name that never resolves. Any CONNECT
	// reply for it proves the proxy processes requests.
	socks5ProbeHost = "fisgon-probe.invalid"
)

// CheckConnection performs a SOCKS5 handshake and a CONNECT request
// against the proxy and reports whether it behaves like a SOCKS5 proxy.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no authentication.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	port := uint16(80)
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(socks5ProbeHost)),
	}
	connectReq = append(connectReq, socks5ProbeHost...)
	connectReq = append(connectReq, byte(port>>8), byte(port&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, reply, reserved, address type. The reply code itself does
	// not matter: a failure for the unresolvable probe host is expected.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// NewHTTPClient returns an HTTP client whose connections go through the
// proxy. TLS certificates are verified as usual.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:         c.DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// DialContext opens a connection through the proxy. The x/net SOCKS5
// dialer honors ctx directly; other dialers are raced against ctx.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}
