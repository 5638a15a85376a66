package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	localTimeout  = time.Second
	remoteTimeout = 2 * time.Second
)

// publicResolvers are raced when the system resolver fails, which happens
// behind captive portals and some VPN setups.
var publicResolvers = []string{
	"1.1.1.1",
	"1.0.0.1",
	"[2606:4700:4700::1111]",
	"8.8.8.8",
	"8.8.4.4",
	"[2001:4860:4860::8888]",
	"9.9.9.9",
	"149.112.112.112",
	"208.67.222.222",
	"208.67.220.220",
}

// Lookup resolves host to a single address, preferring IPv4. IP literals
// are returned unchanged.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	ip, err := lookupWith(ctx, &net.Resolver{}, host, localTimeout)
	if err == nil {
		return ip, nil
	}
	log.Debug().Err(err).Str("host", host).Msg("system resolver failed, racing public resolvers")
	return race(ctx, host, publicResolvers)
}

// race queries every resolver at once and returns the first answer.
func race(ctx context.Context, host string, servers []string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	results := make(chan result, len(servers))
	for _, server := range servers {
		go func(server string) {
			ip, err := lookupWith(ctx, resolverFor(server), host, remoteTimeout)
			results <- result{ip: ip, err: err}
		}(server)
	}

	var failures int
	for range servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, failures)
}

func resolverFor(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
}

func lookupWith(ctx context.Context, r *net.Resolver, host string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pick(addrs)
}

// pick returns the first IPv4 address, or the first address at all.
func pick(addrs []string) (string, error) {
	if len(addrs) == 0 {
		return "", errors.New("no addresses found")
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
