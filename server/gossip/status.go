package gossip

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/mergedb/server/status"
)

type Status struct {
	engine *Engine
}

func NewStatus(engine *Engine) *Status {
	return &Status{
		engine: engine,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/peers", s.listPeersRoute)
}

func (s *Status) listPeersRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Peers())
}

var _ status.Handler = &Status{}
