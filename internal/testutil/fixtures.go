// Package testutil provides fixtures shared by tunnelsync tests.
package testutil

import (
	"fmt"
	"strings"
)

// Obviously fake tunnel addresses.
const (
	FakeTunnelURL  = "https://test-tunnel.trycloudflare.com"
	StaleTunnelURL = "https://stale-tunnel.trycloudflare.com/"
	FakeNgrokURL   = "https://test-tunnel.ngrok-free.app"
)

// LocalPattern matches httptest server addresses, so a test server can stand
// in for the tunnel endpoint.
const LocalPattern = `http://127\.0\.0\.1:\d+`

// CloudflaredLog renders a quick-tunnel log in which each url is announced
// by a fresh tunnel incarnation, in order.
func CloudflaredLog(urls ...string) string {
	const ts = "2026-10-17T09:00:00Z"
	var b strings.Builder
	fmt.Fprintf(&b, "%s INF Requesting new quick Tunnel on trycloudflare.com...\n", ts)
	for i, u := range urls {
		fmt.Fprintf(&b, "%s INF +--------------------------------------------------------------------------------------------+\n", ts)
		fmt.Fprintf(&b, "%s INF |  Your quick Tunnel has been created! Visit it at (it may take some time to be reachable):  |\n", ts)
		fmt.Fprintf(&b, "%s INF |  %-90s|\n", ts, u)
		fmt.Fprintf(&b, "%s INF +--------------------------------------------------------------------------------------------+\n", ts)
		fmt.Fprintf(&b, "%s INF Registered tunnel connection connIndex=%d location=ams01 protocol=quic\n", ts, i)
	}
	return b.String()
}

// ComposeFile renders a docker-compose.yml whose n8n service carries
// key=value in list-form environment.
func ComposeFile(key, value string) string {
	return fmt.Sprintf(`services:
  n8n:
    image: n8nio/n8n
    environment:
      - N8N_HOST=0.0.0.0
      - %s=%s
      - N8N_PORT=5678
    volumes:
      - n8n_data:/home/node/.n8n
volumes:
  n8n_data:
`, key, value)
}
