// Package screening classifies campaign interactions as automated
// gateway/scanner traffic rather than real recipient activity. The server
// flags screened events itself on current versions; this package fills the
// gap for servers that predate the flag.
package screening

import (
	"encoding/json"
	"net"
	"strings"

	"github.com/ignite/phishsim-monitor/internal/domain"
)

// Substrings commonly seen in email-gateway User-Agents.
var gatewayUASignatures = []string{
	"GoogleImageProxy",
	"ms-office-web",
	"Proofpoint",
	"Mimecast",
	"Microsoft-Exchange-Transport",
	"Linux x86_64) AppleWebKit", // generic headless Linux/Chrome scanners
}

// CIDRs known to host common gateway scanners.
var gatewayCIDRs = []string{
	"66.249.84.0/24", // GoogleImageProxy
	"34.0.0.0/8",     // AWS ranges, broad on purpose
	"35.0.0.0/8",
	"54.0.0.0/8",
}

var gatewayIPNets []*net.IPNet

func init() {
	for _, cidr := range gatewayCIDRs {
		if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
			gatewayIPNets = append(gatewayIPNets, ipnet)
		}
	}
}

func isGatewayUA(ua string) bool {
	lower := strings.ToLower(ua)
	for _, sig := range gatewayUASignatures {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}

func isGatewayIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipnet := range gatewayIPNets {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// IsGatewayHit reports whether either the source address or the user agent
// matches a known gateway signature.
func IsGatewayHit(ipStr, ua string) bool {
	return isGatewayUA(ua) || isGatewayIP(ipStr)
}

// Annotate sets IsScreened on interaction events the server left
// unflagged, based on the browser metadata embedded in the event details.
// Events with missing or malformed details are left untouched. Returns the
// number of events newly flagged.
func Annotate(events []domain.Event) int {
	flagged := 0
	for i := range events {
		ev := &events[i]
		if ev.IsScreened || ev.Details == "" {
			continue
		}
		if ev.Message != domain.EventOpened && ev.Message != domain.EventClicked {
			continue
		}

		var details domain.EventDetails
		if err := json.Unmarshal([]byte(ev.Details), &details); err != nil {
			continue
		}
		if IsGatewayHit(details.Browser["address"], details.Browser["user-agent"]) {
			ev.IsScreened = true
			flagged++
		}
	}
	return flagged
}
