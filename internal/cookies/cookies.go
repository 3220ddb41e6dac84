// Package cookies erases auth cookies thoroughly. A cookie only dies
// when the expiring Set-Cookie matches the attributes it was set with,
// and those attributes are not always known, so erasure enumerates the
// plausible domain, SameSite, and Secure combinations.
package cookies

import (
	"net/http"
	"strings"
	"time"
)

// AuthCookieNames are the cookies holding session material that must
// not survive a termination.
var AuthCookieNames = []string{
	"sb-access-token",
	"sb-refresh-token",
	"session",
}

// ExpireVariants builds expired Set-Cookie values for every attribute
// combination the cookie could have been set with: no domain, the exact
// host, and the dot-prefixed host, crossed with each SameSite mode and
// both Secure settings. SameSite=None without Secure is skipped since
// browsers reject it.
func ExpireVariants(name, host string) []*http.Cookie {
	host = stripPort(host)
	domains := []string{"", host}
	if host != "" && !strings.HasPrefix(host, ".") {
		domains = append(domains, "."+host)
	}

	sameSites := []http.SameSite{http.SameSiteStrictMode, http.SameSiteLaxMode, http.SameSiteNoneMode}

	var variants []*http.Cookie
	for _, domain := range domains {
		for _, sameSite := range sameSites {
			for _, secure := range []bool{false, true} {
				if sameSite == http.SameSiteNoneMode && !secure {
					continue
				}
				variants = append(variants, &http.Cookie{
					Name:     name,
					Value:    "",
					Path:     "/",
					Domain:   domain,
					MaxAge:   -1,
					Expires:  time.Unix(0, 0),
					Secure:   secure,
					HttpOnly: true,
					SameSite: sameSite,
				})
			}
		}
	}
	return variants
}

// EraseAll writes expiring variants for every auth cookie name onto the
// response.
func EraseAll(w http.ResponseWriter, host string) {
	for _, name := range AuthCookieNames {
		for _, c := range ExpireVariants(name, host) {
			http.SetCookie(w, c)
		}
	}
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
