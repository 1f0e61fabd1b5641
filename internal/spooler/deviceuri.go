package spooler

import (
	"net"
	"strconv"
	"strings"
)

// DefaultIPPPort is the IANA port for IPP
const DefaultIPPPort = 631

// DeviceURI builds the IPP device URI for a printer at address.
// Port 0 and the default port are omitted; IPv6 literals are bracketed.
func DeviceURI(address string, port int) string {
	host := strings.Trim(address, "[]")
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	if port == 0 || port == DefaultIPPPort {
		return "ipp://" + host + "/ipp/print"
	}
	return "ipp://" + host + ":" + strconv.Itoa(port) + "/ipp/print"
}

// SplitAddress separates an optional port from address. Plain hosts and IP
// literals are returned with port 0.
func SplitAddress(address string) (host string, port int) {
	if ip := net.ParseIP(strings.Trim(address, "[]")); ip != nil {
		return ip.String(), 0
	}

	h, p, err := net.SplitHostPort(address)
	if err != nil {
		return address, 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return address, 0
	}
	return strings.Trim(h, "[]"), n
}
