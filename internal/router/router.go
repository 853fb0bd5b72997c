package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"charity_bff_v1/internal/controller"
	"charity_bff_v1/internal/middleware"
)

// 向导入口只对这两类角色开放
var leaderRoles = []string{"campaign-leader", "admin"}

// Controllers 控制器集合
type Controllers struct {
	Like   *controller.LikeController
	Wizard *controller.WizardController
	Draft  *controller.DraftController
}

// Limiters 限流器集合，为 nil 时不限流
type Limiters struct {
	Like    *middleware.RateLimiter
	Publish *middleware.RateLimiter
}

// SetupRouter 创建引擎并注册所有路由
func SetupRouter(ctrls *Controllers, limiters *Limiters, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if limiters == nil {
		limiters = &Limiters{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	// 单次最多 5 张 5MB 图片，剩余部分落盘
	r.MaxMultipartMemory = 32 << 20

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0, "message": "ok"})
	})

	InitRoutes(r, ctrls, limiters)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctrls *Controllers, limiters *Limiters) {
	api := r.Group("/api")
	{
		// 分类列表无需登录，带令牌时记录访问者
		api.GET("/categories", middleware.OptionalAuth(), ctrls.Wizard.Categories)

		authed := api.Group("", middleware.JWTAuth())

		// like 点赞
		likes := authed.Group("/campaigns/:id/like")
		{
			// GET /api/campaigns/:id/like?server_liked=true
			likes.GET("", ctrls.Like.GetLike)
			likes.POST("/observe", ctrls.Like.ObserveLike)
			likes.POST("/toggle", limit(limiters.Like, "like"), ctrls.Like.ToggleLike)
		}

		// notices 异步提示
		authed.GET("/notices", ctrls.Like.DrainNotices)

		// wizard 创建活动向导
		wizard := authed.Group("/wizard", middleware.RequireRole(leaderRoles...))
		{
			wizard.POST("", ctrls.Wizard.Start)
			wizard.GET("/:sid", ctrls.Wizard.Get)
			wizard.DELETE("/:sid", ctrls.Wizard.Discard)
			wizard.PATCH("/:sid/fields", ctrls.Wizard.UpdateFields)
			wizard.POST("/:sid/next", ctrls.Wizard.Next)
			wizard.POST("/:sid/prev", ctrls.Wizard.Prev)
			wizard.POST("/:sid/draft", ctrls.Wizard.SaveDraft)
			wizard.POST("/:sid/publish", limit(limiters.Publish, "publish"), ctrls.Wizard.Publish)
			wizard.POST("/:sid/images", ctrls.Wizard.UploadImages)
			wizard.DELETE("/:sid/images/:index", ctrls.Wizard.RemoveImage)
			wizard.POST("/:sid/load/:draft_id", ctrls.Wizard.LoadDraft)
		}

		// drafts 我的草稿
		drafts := authed.Group("/drafts", middleware.RequireRole(leaderRoles...))
		{
			drafts.GET("", ctrls.Draft.ListDrafts)
			drafts.DELETE("/:id", ctrls.Draft.DeleteDraft)
		}
	}
}

func limit(l *middleware.RateLimiter, scope string) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(l, scope)
}
