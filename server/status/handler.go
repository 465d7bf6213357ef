package status

import "github.com/gin-gonic/gin"

// Handler is a handler in the admin status API.
//
// Each handler registers routes under its own group, such as
// '/status/store', to inspect the state of that component.
type Handler interface {
	// Register registers routes on the given group for the handler.
	Register(group *gin.RouterGroup)
}
