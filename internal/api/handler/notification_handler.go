package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

// Notifications 持久化通知列表（按创建时间降序）
// @Summary 通知列表
// @Tags 通知
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/notifications [get]
func (h *Handler) Notifications(c *gin.Context) {
	ident := middleware.MustIdentity(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = h.pageSize
	}
	list, err := h.notifs.ListByUser(c.Request.Context(), ident.ID, (page-1)*pageSize, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	unread, err := h.notifs.CountUnread(c.Request.Context(), ident.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list, "unread": unread})
}

// LiveNotifications 本会话实时收件箱（到达顺序）
// @Summary 实时收件箱
// @Tags 通知
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/notifications/live [get]
func (h *Handler) LiveNotifications(c *gin.Context) {
	sess := middleware.Session(c)
	response.Success(c, gin.H{"list": sess.Inbox.Items(), "unread": sess.Inbox.Unread()})
}

// MarkNotificationRead 单条已读
// @Summary 标记已读
// @Tags 通知
// @Param id path string true "通知ID"
// @Success 200 {object} response.Response
// @Router /api/v1/notifications/{id}/read [post]
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	ident := middleware.MustIdentity(c)
	if err := h.notifs.MarkRead(c.Request.Context(), ident.ID, c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// MarkAllNotificationsRead 全部已读（持久层与会话收件箱一起清）
// @Summary 全部已读
// @Tags 通知
// @Success 200 {object} response.Response
// @Router /api/v1/notifications/read-all [post]
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	ident := middleware.MustIdentity(c)
	sess := middleware.Session(c)
	if err := h.notifs.MarkAllRead(c.Request.Context(), ident.ID); err != nil {
		response.InternalError(c, err)
		return
	}
	sess.Inbox.MarkAllRead()
	response.Success(c, nil)
}
