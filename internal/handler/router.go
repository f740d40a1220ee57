package handler

import "github.com/gin-gonic/gin"

type RouterDeps struct {
	Train   *TrainHandler
	Context *ContextHandler
}

// RegisterRoutes mounts the API onto the group provided by the web engine.
func RegisterRoutes(group *gin.RouterGroup, deps RouterDeps) {
	group.POST("/train", deps.Train.Train)
	group.GET("/train/history", deps.Train.History)
	group.POST("/context", deps.Context.BuildContext)
}
