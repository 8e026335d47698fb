package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

// Feed 全局时间流（守卫过滤后，按创建时间降序键集分页）
// @Summary 时间流
// @Tags 内容
// @Param cursor query string false "上一页返回的游标"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	sess := middleware.Session(c)
	fetcher := feed.NewFetcher(h.posts, h.messages, sess.Guard, h.pageSize)
	posts, next, err := fetcher.FeedPage(c.Request.Context(), c.Query("cursor"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": posts, "next_cursor": next})
}

// Pending 当前会话的乐观条目（调试/前端对账用）
// @Summary 乐观条目快照
// @Tags 内容
// @Success 200 {object} response.Response
// @Router /api/v1/feed/pending [get]
func (h *Handler) Pending(c *gin.Context) {
	sess := middleware.Session(c)
	response.Success(c, gin.H{"list": sess.Pending.Entries()})
}
