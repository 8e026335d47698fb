package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

// Subscribe 订阅用户（触发 new-subscriber 扇出）
// @Summary 订阅
// @Tags 关系链
// @Param id path string true "目标用户ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/profiles/{id}/subscribe [post]
func (h *Handler) Subscribe(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionSubscribe,
		service.RelationInput{TargetID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Unsubscribe 取消订阅
// @Summary 取消订阅
// @Tags 关系链
// @Param id path string true "目标用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/profiles/{id}/subscribe [delete]
func (h *Handler) Unsubscribe(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionUnsubscribe,
		service.RelationInput{TargetID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Block 拉黑：双向抑制可见性与投递，守卫整体重算
// @Summary 拉黑
// @Tags 关系链
// @Param id path string true "目标用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/profiles/{id}/block [post]
func (h *Handler) Block(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionBlock,
		service.RelationInput{TargetID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Unblock 解除拉黑：不做历史回放，只整体重算关系集合
// @Summary 解除拉黑
// @Tags 关系链
// @Param id path string true "目标用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/profiles/{id}/block [delete]
func (h *Handler) Unblock(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionUnblock,
		service.RelationInput{TargetID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListSubscribers 查询某用户的订阅者
// @Summary 订阅者列表
// @Tags 关系链
// @Param id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/profiles/{id}/subscribers [get]
func (h *Handler) ListSubscribers(c *gin.Context) {
	userID := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = h.pageSize
	}
	list, err := h.subs.ListSubscribers(c.Request.Context(), userID, (page-1)*pageSize, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
