package tor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("valid proxy address creates client", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:9050", 30*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.ProxyAddress() != "127.0.0.1:9050" {
			t.Errorf("ProxyAddress() = %q, expected %q", client.ProxyAddress(), "127.0.0.1:9050")
		}
	})

	t.Run("invalid address returns error", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient("127.0.0.1", 30*time.Second)
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		address string
		want    bool
	}{
		{"ipv4", "127.0.0.1:9050", true},
		{"hostname", "localhost:1080", true},
		{"ipv6", "[::1]:9050", true},
		{"max port", "127.0.0.1:65535", true},
		{"empty", "", false},
		{"no port", "127.0.0.1", false},
		{"empty host", ":9050", false},
		{"empty port", "127.0.0.1:", false},
		{"port zero", "127.0.0.1:0", false},
		{"port too large", "127.0.0.1:65536", false},
		{"non numeric port", "127.0.0.1:tor", false},
		{"bare ipv6", "::1:9050", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := isValidProxyAddress(tc.address); got != tc.want {
				t.Errorf("isValidProxyAddress(%q) = %v, want %v", tc.address, got, tc.want)
			}
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient("127.0.0.1:9050", 45*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	httpClient := client.NewHTTPClient()

	if httpClient.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", httpClient.Timeout)
	}
	if httpClient.Jar == nil {
		t.Error("expected a cookie jar")
	}
	transport, ok := httpClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", httpClient.Transport)
	}
	if transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("TLS verification must stay enabled")
	}

	via := make([]*http.Request, maxRedirects)
	if err := httpClient.CheckRedirect(nil, via); !errors.Is(err, http.ErrUseLastResponse) {
		t.Errorf("expected ErrUseLastResponse after %d redirects, got %v", maxRedirects, err)
	}
	if err := httpClient.CheckRedirect(nil, via[:1]); err != nil {
		t.Errorf("expected redirect to be followed, got %v", err)
	}
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status  ProxyStatus
		str     string
		wantErr error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.str, func(t *testing.T) {
			t.Parallel()

			if tc.status.String() != tc.str {
				t.Errorf("String() = %q, want %q", tc.status.String(), tc.str)
			}
			if !errors.Is(tc.status.Error(), tc.wantErr) {
				t.Errorf("Error() = %v, want %v", tc.status.Error(), tc.wantErr)
			}
		})
	}

	if ProxyStatus(99).String() != "unknown" || ProxyStatus(99).Error() == nil {
		t.Error("unknown status must have a label and an error")
	}
}

// mockServer accepts one connection and hands it to handle.
func mockServer(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return listener.Addr().String()
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("returns CannotConnect for non-existent proxy", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("127.0.0.1:59999", 30*time.Second)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		if status := client.CheckConnection(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", status)
		}
	})

	tests := []struct {
		name   string
		handle func(net.Conn)
		want   ProxyStatus
	}{
		{
			name: "http server",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
			},
			want: ProxyStatusWrongType,
		},
		{
			name: "proxy requiring auth",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte{0x05, 0xFF})
			},
			want: ProxyStatusWrongType,
		},
		{
			name: "host unreachable reply is still a working proxy",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte{0x05, 0x00})
				req := make([]byte, 256)
				_, _ = conn.Read(req)
				_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
			},
			want: ProxyStatusOK,
		},
		{
			name: "wrong version in connect reply",
			handle: func(conn net.Conn) {
				buf := make([]byte, 3)
				_, _ = conn.Read(buf)
				_, _ = conn.Write([]byte{0x05, 0x00})
				req := make([]byte, 256)
				_, _ = conn.Read(req)
				_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x01})
			},
			want: ProxyStatusWrongType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(mockServer(t, tt.handle), 30*time.Second)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}
			if status := client.CheckConnection(context.Background()); status != tt.want {
				t.Errorf("expected %v, got %v", tt.want, status)
			}
		})
	}
}

// serveSOCKS5 is a minimal unauthenticated SOCKS5 server that supports
// CONNECT to IPv4 and domain addresses.
func serveSOCKS5(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start SOCKS5 server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleSOCKS5(conn)
		}
	}()
	return listener.Addr().String()
}

func handleSOCKS5(conn net.Conn) {
	defer conn.Close()

	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil {
		return
	}
	methods := make([]byte, head[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	var host string
	switch req[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	default:
		return
	}
	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBuf)

	target, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port)))) //nolint:noctx // test code
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()

	if _, err := conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0, 0}); err != nil {
		return
	}
	go func() { _, _ = io.Copy(target, conn) }()
	_, _ = io.Copy(conn, target)
}

func TestHTTPThroughProxy(t *testing.T) {
	t.Parallel()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("via proxy"))
	}))
	t.Cleanup(site.Close)

	client, err := NewClient(serveSOCKS5(t), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	resp, err := client.NewHTTPClient().Get(site.URL) //nolint:noctx // test code
	if err != nil {
		t.Fatalf("GET through proxy failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != "via proxy" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestDialContext(t *testing.T) {
	t.Parallel()

	client, err := NewClient("127.0.0.1:59998", 30*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.DialContext(ctx, "tcp", "example.com:80"); err == nil {
		t.Error("expected an error for a cancelled context and an unreachable proxy")
	}
}
