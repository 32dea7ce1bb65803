package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginAllowed reports whether origin is in allowed. An empty allow-list
// or a request without Origin (non-browser client) passes. Entries match
// scheme://host[:port] exactly, "*" matches anything and "*.example.com"
// matches subdomains.
func OriginAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, a := range allowed {
		switch {
		case a == "*":
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(u.Hostname(), a[1:]) {
				return true
			}
		case strings.EqualFold(strings.TrimRight(a, "/"), u.Scheme+"://"+u.Host):
			return true
		}
	}
	return false
}

// Origin rejects browser requests whose Origin is not allowed.
func Origin(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !OriginAllowed(allowed, c.GetHeader("Origin")) {
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
}
