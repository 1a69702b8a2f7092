package ftp

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var (
	pasvPattern = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)
	epsvPattern = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV extracts the data address from a PASV reply's "(h1,h2,h3,h4,p1,p2)"
// payload (spec.md §4.3 data channel negotiation).
func parsePASV(msg string) (string, error) {
	m := pasvPattern.FindStringSubmatch(msg)
	if len(m) != 7 {
		return "", fmt.Errorf("ftp: malformed PASV reply %q", msg)
	}
	var octet [4]int
	for i := 0; i < 4; i++ {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("ftp: malformed PASV address in %q", msg)
		}
		octet[i] = v
	}
	p1, err1 := strconv.Atoi(m[5])
	p2, err2 := strconv.Atoi(m[6])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		return "", fmt.Errorf("ftp: malformed PASV port in %q", msg)
	}
	host := fmt.Sprintf("%d.%d.%d.%d", octet[0], octet[1], octet[2], octet[3])
	return net.JoinHostPort(host, strconv.Itoa(p1*256+p2)), nil
}

// parseEPSV extracts the port from an EPSV reply's "(|||port|)" payload; the
// host is always the control connection's own peer (RFC 2428).
func parseEPSV(msg string) (string, error) {
	m := epsvPattern.FindStringSubmatch(msg)
	if len(m) != 2 {
		return "", fmt.Errorf("ftp: malformed EPSV reply %q", msg)
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("ftp: malformed EPSV port in %q", msg)
	}
	return m[1], nil
}

// substitutePasvAddress applies spec.md §4.3's ignore-pasv-address rule: a
// server advertising 0.0.0.0 (or, when ignorePasvAddress is set, any address
// at all) really means "connect back to the address you reached me on".
func substitutePasvAddress(addr, controlHost string, ignorePasvAddress bool) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ignorePasvAddress || host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}
	return addr
}

// verifyDataPeer enforces spec.md §4.3's data-connection verification rule:
// the peer that connected (or that we connected to) must share the control
// connection's host unless verification has been disabled for a closure
// known to sit behind address-translating middleboxes.
func verifyDataPeer(peerHost, controlHost string, verify bool) bool {
	if !verify {
		return true
	}
	return peerHost == controlHost
}

// formatPORT renders a local IPv4 "host:port" as PORT's
// "h1,h2,h3,h4,p1,p2" argument.
func formatPORT(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("ftp: invalid local address %q", host)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return "", fmt.Errorf("ftp: PORT requires an IPv4 address, got %q", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip4[0], ip4[1], ip4[2], ip4[3], port/256, port%256), nil
}

// formatEPRT renders "host:port" as EPRT's "|d|net-prt|net-addr|tcp-port|"
// argument (RFC 2428), picking protocol 1 for IPv4 and 2 for IPv6.
func formatEPRT(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("ftp: invalid local address %q", host)
	}
	proto := 2
	if ip.To4() != nil {
		proto = 1
	}
	return fmt.Sprintf("|%d|%s|%s|", proto, host, port), nil
}

// standardDataPort reports whether port is either the well-known ftp-data
// port or one a FEAT/PASV exchange already told us this server uses, part
// of spec.md §4.3's data-connection verification.
func standardDataPort(port string, serverAdvertised string) bool {
	return port == "20" || (serverAdvertised != "" && port == serverAdvertised)
}
