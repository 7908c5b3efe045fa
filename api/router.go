package api

import (
	"net/http"

	"github.com/fyerfyer/regulation-mapper/api/handler"
	"github.com/fyerfyer/regulation-mapper/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(mappingHandler *handler.MappingHandler) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())
	router.Use(Cors())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	router.GET("/", mappingHandler.Root)
	router.POST("/map-regulations", mappingHandler.MapRegulations)

	api := router.Group("/api")
	{
		// 映射记录API
		mappingGroup := api.Group("/mappings")
		{
			// 提交异步映射 - POST /api/mappings
			mappingGroup.POST("", mappingHandler.SubmitMapping)

			// 获取映射列表 - GET /api/mappings
			mappingGroup.GET("", mappingHandler.ListMappings)

			// 获取映射记录 - GET /api/mappings/:id
			mappingGroup.GET("/:id", mappingHandler.GetMapping)

			// 获取映射报告 - GET /api/mappings/:id/report
			mappingGroup.GET("/:id/report", mappingHandler.GetReport)

			// 删除映射记录 - DELETE /api/mappings/:id
			mappingGroup.DELETE("/:id", mappingHandler.DeleteMapping)
		}

		// 任务状态 - GET /api/tasks/:id
		api.GET("/tasks/:id", mappingHandler.GetTaskStatus)

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
