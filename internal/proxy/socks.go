// Package proxy builds the HTTP client used for cloud egress. Some
// desktops only reach the speech APIs through a local SOCKS5 tunnel;
// when no proxy address is configured the default transport is used.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// defaultTimeout bounds a whole request. Transcription uploads of a few
// hundred kilobytes over a slow tunnel need headroom.
const defaultTimeout = 120 * time.Second

// Client returns an HTTP client routed through the SOCKS5 proxy at
// addr, or a plain client when addr is empty. timeout <= 0 picks the
// default.
func Client(addr string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if addr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", addr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, target string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, target)
			}
			return dialer.Dial(network, target)
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
