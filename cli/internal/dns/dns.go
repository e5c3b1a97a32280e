package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	localTimeout  = time.Second
	publicTimeout = 2 * time.Second
)

// ErrNoAddress is returned when a resolver answers without any address.
var ErrNoAddress = errors.New("no IP addresses found")

// publicDNS is queried when the system resolver fails.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"[2620:fe::fe]",          // Quad9
	"208.67.222.222",         // Cisco OpenDNS
}

// Resolver looks up a host with a given resolver.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Lookup resolves a hostname to an IP address, preferring IPv4. It tries the
// system resolver first and races public DNS servers if that fails.
func Lookup(ctx context.Context, address string) (string, error) {
	if ip := net.ParseIP(address); ip != nil {
		return address, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, localTimeout)
	ip, err := lookupWith(localCtx, &net.Resolver{}, address)
	cancel()
	if err == nil {
		return ip, nil
	}

	return raceLookup(ctx, address, publicResolvers())
}

// DialContext resolves the host part of addr with Lookup and dials it.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func publicResolvers() []Resolver {
	out := make([]Resolver, 0, len(publicDNS))
	for _, server := range publicDNS {
		out = append(out, &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
			},
		})
	}
	return out
}

// raceLookup returns the first successful answer from resolvers.
func raceLookup(ctx context.Context, address string, resolvers []Resolver) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	results := make(chan result, len(resolvers))
	for _, r := range resolvers {
		go func(r Resolver) {
			ip, err := lookupWith(ctx, r, address)
			results <- result{ip: ip, err: err}
		}(r)
	}

	failures := 0
	for range resolvers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("dns lookup for %s: %w", address, ctx.Err())
		}
	}

	return "", fmt.Errorf("failed to resolve %s: all %d resolvers failed", address, failures)
}

func lookupWith(ctx context.Context, r Resolver, address string) (string, error) {
	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", ErrNoAddress
	}

	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
