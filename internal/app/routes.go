package app

import (
	"github.com/gin-gonic/gin"
	"github.com/hanziloop/core/internal/modules/phrase"
	"github.com/hanziloop/core/internal/pkg/response"
)

func (a *App) registerRoutes(phraseSvc *phrase.Service) {
	api := a.router.Group("/api/v1")

	phrase.NewHandler(phraseSvc, a.db).RegisterRoutes(api)

	cron := api.Group("/cron-task")
	cron.GET("", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	cron.POST("/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, "no such job")
			return
		}
		response.OK(c, gin.H{"message": "job triggered"})
	})
}
