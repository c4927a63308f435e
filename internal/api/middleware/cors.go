package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS builds the admin API's cross-origin policy for the given origins. The
// surface is GET/POST only, so the allowed methods and headers stay narrow.
// Credentials are honored only for explicit origins; a wildcard deployment
// gets the permissive origin header without them.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := len(origins) == 1 && origins[0] == "*"

	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Authorization",
			RequestIDHeader,
		},
		AllowCredentials: !wildcard,
		MaxAge:           12 * time.Hour,
	})
}
