package util

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/CopilotAPI/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// SetProxy routes httpClient through cfg.ProxyURL (http, https, socks5 or socks5h).
// An empty or unusable proxy URL leaves the client on a direct connection.
func SetProxy(cfg *config.SDKConfig, httpClient *http.Client) *http.Client {
	if cfg == nil {
		return httpClient
	}
	raw := strings.TrimSpace(cfg.ProxyURL)
	if raw == "" {
		return httpClient
	}
	transport, err := proxyTransport(raw)
	if err != nil {
		log.Errorf("proxy %s ignored: %v", redactUserinfo(raw), err)
		return httpClient
	}
	httpClient.Transport = transport
	return httpClient
}

func proxyTransport(raw string) (*http.Transport, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(u)}, nil
	case "socks5", "socks5h":
		return socksTransport(u)
	}
	return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func socksTransport(u *url.URL) (*http.Transport, error) {
	var creds *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		creds = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, creds, proxy.Direct)
	if err != nil {
		return nil, err
	}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}
	return &http.Transport{DialContext: dial}, nil
}

func redactUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("***")
	return u.String()
}

// NewHTTPClient returns a proxied client. A zero timeout leaves it unbounded,
// which streaming calls rely on.
func NewHTTPClient(cfg *config.SDKConfig, timeout time.Duration) *http.Client {
	return SetProxy(cfg, &http.Client{Timeout: timeout})
}
