package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuard は外部サービスへ送信するHTTPリクエストの宛先を制限する。
// Telegram Bot APIのように公開インターネット上の宛先にのみ接続するクライアントに使用する。
type OutboundGuard interface {
	// NewSafeClient は宛先を公開アドレスのhttps:443に限定したHTTPクライアントを生成する。
	// safeurlがDNS解決後のIPアドレスを検証するため、DNS再バインディングにも対応する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidatePublicURL は設定値のURLがhttpsの公開URLであることを静的に検証する。
	ValidatePublicURL(rawURL string) error
}

type outboundGuard struct{}

// NewOutboundGuard はOutboundGuardの新しいインスタンスを生成する。
func NewOutboundGuard() *outboundGuard {
	return &outboundGuard{}
}

// NewSafeClient は宛先制限付きのHTTPクライアントを生成する。
func (g *outboundGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidatePublicURL はDNS解決を伴わない静的な検証を行う。
// IPアドレスで指定された場合はプライベート・ループバック・リンクローカル・未指定アドレスを拒否する。
func (g *outboundGuard) ValidatePublicURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %q (https only)", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
	}
	return nil
}

// isBlockedAddr はクラウドメタデータIP (169.254.169.254) を含む非公開アドレスを判定する。
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified() ||
		addr.IsMulticast()
}
