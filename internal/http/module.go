// Package http defines how bounded contexts attach their routes to the
// server built by the router package.
package http

import "github.com/gin-gonic/gin"

// Module is a bounded context with HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands a module the groups it may mount routes on. Both
// groups live under /api/v1 and require a valid access token; Admin also
// requires the admin role and is rooted at /api/v1/admin.
type RouterContext struct {
	Protected *gin.RouterGroup
	Admin     *gin.RouterGroup
}
