package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

// CreatePost 发帖
// @Summary 发帖
// @Tags 内容
// @Accept json
// @Produce json
// @Param request body service.CreatePostInput true "帖子内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var in service.CreatePostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sess := middleware.Session(c)
	post, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionCreatePost, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, post)
}

// GetPost 帖子详情页。并发删除下的 NotFound 渲染为“不可用”空态而非错误。
// @Summary 帖子详情
// @Tags 内容
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	id := c.Param("id")
	sess := middleware.Session(c)

	post, err := h.posts.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			response.Success(c, gin.H{"available": false})
			return
		}
		response.Error(c, err)
		return
	}
	if !sess.Guard.IsVisible(post.AuthorID) {
		// 拉黑关系下按不存在处理，不暴露占位符
		response.Success(c, gin.H{"available": false})
		return
	}
	comments, err := h.comments.ListByPost(c.Request.Context(), id, 0, 100)
	if err != nil {
		response.Error(c, err)
		return
	}
	visible := comments[:0]
	for _, cm := range comments {
		if sess.Guard.IsVisible(cm.AuthorID) {
			visible = append(visible, cm)
		}
	}
	likes, err := h.likes.CountByPost(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"available": true,
		"post":      post,
		"comments":  visible,
		"likes":     likes,
	})
}

// DeletePost 删帖（仅作者）
// @Summary 删帖
// @Tags 内容
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionDeletePost,
		service.DeletePostInput{PostID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

// Comment 评论
// @Summary 评论
// @Tags 内容
// @Accept json
// @Produce json
// @Param id path string true "帖子ID"
// @Param request body commentRequest true "评论内容"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id}/comments [post]
func (h *Handler) Comment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sess := middleware.Session(c)
	out, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionComment,
		service.CommentInput{PostID: c.Param("id"), Text: req.Text})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}

// Like 点赞（同一 (post,user) 至多一个赞）
// @Summary 点赞
// @Tags 内容
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id}/like [post]
func (h *Handler) Like(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionLike,
		service.LikeInput{PostID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Unlike 取消点赞
// @Summary 取消点赞
// @Tags 内容
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id}/like [delete]
func (h *Handler) Unlike(c *gin.Context) {
	sess := middleware.Session(c)
	_, err := h.dispatcher.Dispatch(c.Request.Context(), sess, service.ActionUnlike,
		service.LikeInput{PostID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
