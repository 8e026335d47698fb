package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/internal/feed"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

// Conversation 与某用户的会话（按创建时间升序，读取后标记已读）
// @Summary 查看会话
// @Tags 私信
// @Param peer path string true "对端用户ID"
// @Param cursor query string false "上一页返回的游标"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/chat/{peer} [get]
func (h *Handler) Conversation(c *gin.Context) {
	ident := middleware.MustIdentity(c)
	sess := middleware.Session(c)
	peer := c.Param("peer")

	fetcher := feed.NewFetcher(h.posts, h.messages, sess.Guard, h.pageSize)
	msgs, next, err := fetcher.ConversationPage(c.Request.Context(), ident.ID, peer, c.Query("cursor"))
	if err != nil {
		response.Error(c, err)
		return
	}
	_ = h.messages.MarkRead(c.Request.Context(), ident.ID, peer)
	response.Success(c, gin.H{"list": msgs, "next_cursor": next})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage 发私信（拉黑关系本地拒绝，不发起网络调用）
// @Summary 发私信
// @Tags 私信
// @Accept json
// @Produce json
// @Param peer path string true "对端用户ID"
// @Param request body sendMessageRequest true "消息内容"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/chat/{peer} [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sess := middleware.Session(c)
	out, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionMessage,
		service.MessageInput{RecipientID: c.Param("peer"), Text: req.Text})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}
