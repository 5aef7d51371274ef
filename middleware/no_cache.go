package middleware

import "github.com/gin-gonic/gin"

// NoCache marks API responses as uncacheable. Analysis results change
// while a contract is being analyzed.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
