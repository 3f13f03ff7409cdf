// internal/httpapi/client.go
//
// Per-request caller fingerprint for the access log.
//
// Context
// -------
// Tenant data is usually reached by other services, but the gateway also
// fronts admin consoles and the occasional crawler.  For every request the
// clientInfo middleware records:
//
//  1. The left-most client IP from X-Forwarded-For or X-Real-IP, falling
//     back to `r.RemoteAddr`.
//  2. A coarse User-Agent reading (agent family, device class, bot flag).
//  3. The ISO country code, when a GeoLite2 database is configured.
//
// The result is stored in the request context and logged by accessLog.
//
// Notes
// -----
// • Geo lookups are read-only; *geoip2.Reader is safe for concurrent use.
// • Oxford commas, two spaces after periods.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// ClientInfo describes the caller of one request.
type ClientInfo struct {
	IP      net.IP
	Country string
	Agent   string // "Chrome", "Firefox", ... or "Unknown"
	Device  string // "Desktop", "Mobile", "Tablet", or "Other"
	IsBot   bool
}

// CountryLookup is satisfied by *geoip2.Reader.
type CountryLookup interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// OpenGeoIP opens a GeoLite2 Country or City database.
func OpenGeoIP(path string) (*geoip2.Reader, error) {
	return geoip2.Open(path)
}

type clientKey struct{}

// ClientFromContext returns the info stored by the middleware, or nil.
func ClientFromContext(ctx context.Context) *ClientInfo {
	v, _ := ctx.Value(clientKey{}).(*ClientInfo)
	return v
}

func (a *API) clientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := parseAgent(r.UserAgent())
		info.IP = clientIP(r)
		info.Country = a.country(info.IP)

		ctx := context.WithValue(r.Context(), clientKey{}, &info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) country(ip net.IP) string {
	if a.geo == nil || ip == nil {
		return ""
	}
	rec, err := a.geo.Country(ip)
	if err != nil || rec == nil {
		return ""
	}
	return rec.Country.IsoCode
}

// parseAgent reads the User-Agent header.  An empty header yields Agent
// "Unknown" and Device "Other".
func parseAgent(raw string) ClientInfo {
	ua := surfer.Parse(raw)

	info := ClientInfo{
		Agent: strings.TrimPrefix(ua.Browser.Name.String(), "Browser"),
		IsBot: ua.IsBot(),
	}
	switch ua.DeviceType {
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = "Mobile"
	default:
		info.Device = "Other"
	}
	return info
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
