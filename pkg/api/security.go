// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/sashimi-data/sashimi/pkg/config"
)

// authError maps to a 401 response.
type authError struct {
	msg string
}

func (e *authError) Error() string {
	return e.msg
}

func newAuthError(format string, a ...interface{}) *authError {
	return &authError{msg: fmt.Sprintf(format, a...)}
}

var ipPrefixRe = regexp.MustCompile(`^([0-9]{1,3})\.([0-9]{1,3})\.([0-9]{1,3})\.([0-9]{1,3})`)

// clientIP extracts the dotted-quad client address, from the configured
// ip_header when the service sits behind a proxy, else from the
// connection.
func clientIP(r *http.Request, cfg *config.Node) (string, error) {
	var raw string
	header := cfg.GetString("ip_header")
	if header != "" {
		raw = r.Header.Get(header)
	} else {
		raw = r.RemoteAddr
		if host, _, err := net.SplitHostPort(raw); err == nil {
			raw = host
		}
	}
	ip := ipPrefixRe.FindString(raw)
	if ip == "" {
		return "", newAuthError("cannot parse ip from %q (ip_header: %q)", raw, header)
	}
	return ip, nil
}

// bearerToken pulls the credentials out of the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// checkToken authorizes a request against a configuration node: the
// client IP must fall in trusted_ips when any are set, and the bearer
// token must match one of the accumulated tokens.
func checkToken(r *http.Request, cfg *config.Node) error {
	ip, err := clientIP(r, cfg)
	if err != nil {
		return err
	}

	if trusted := cfg.TrustedIPs(); len(trusted) > 0 {
		if !ipTrusted(ip, trusted) {
			return newAuthError("client IP %q not found in trusted_ips, sorry", ip)
		}
	}

	token := bearerToken(r)
	for _, t := range cfg.Tokens() {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return nil
		}
	}
	return newAuthError("token %q not found, sorry", token)
}

// ipTrusted reports whether ip falls in any of the given networks. A
// bare address counts as a /32.
func ipTrusted(ip string, networks []string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	for _, spec := range networks {
		if !strings.Contains(spec, "/") {
			spec += "/32"
		}
		_, ipnet, err := net.ParseCIDR(spec)
		if err != nil {
			continue
		}
		if ipnet.Contains(addr) {
			return true
		}
	}
	return false
}

// checkPermission gates lifecycle operations (upload, rm) that are
// allowed by default: only an explicit allowed_operations list on the
// node chain can deny them.
func checkPermission(cfg *config.Node, op string) error {
	for node := cfg; node != nil; node = node.Parent() {
		allowed := node.GetStringSlice("allowed_operations")
		if allowed == nil {
			continue
		}
		for _, a := range allowed {
			if a == op {
				return nil
			}
		}
		return newAuthError("operation %q is not allowed here", op)
	}
	return nil
}
