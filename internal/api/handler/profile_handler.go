package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/pkg/errs"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

// GetProfile 用户主页：资料 + 最近帖子。拉黑关系下渲染“不可用”空态。
// @Summary 查看资料
// @Tags 资料
// @Param id path string true "用户ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/profiles/{id} [get]
func (h *Handler) GetProfile(c *gin.Context) {
	id := c.Param("id")
	sess := middleware.Session(c)

	if !sess.Guard.IsVisible(id) {
		response.Success(c, gin.H{"available": false})
		return
	}
	prof, err := h.profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			response.Success(c, gin.H{"available": false})
			return
		}
		response.Error(c, err)
		return
	}
	posts, err := h.posts.ListByAuthor(c.Request.Context(), id, nil, h.pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"available":  true,
		"profile":    prof,
		"posts":      posts,
		"subscribed": sess.Guard.IsSubscribed(id),
	})
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"omitempty,max=64"`
	Bio         string `json:"bio" binding:"omitempty,max=1000"`
	Location    string `json:"location" binding:"omitempty,max=128"`
	Contact     string `json:"contact" binding:"omitempty,max=128"`
	Education   string `json:"education" binding:"omitempty,max=128"`
	AvatarURL   string `json:"avatar_url" binding:"omitempty,max=256"`
}

// UpdateProfile 更新资料（仅本人）
// @Summary 更新资料
// @Tags 资料
// @Accept json
// @Produce json
// @Param request body updateProfileRequest true "资料字段"
// @Success 200 {object} response.Response
// @Router /api/v1/profiles/me [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ident := middleware.MustIdentity(c)
	fields := map[string]any{
		"display_name": req.DisplayName,
		"bio":          req.Bio,
		"location":     req.Location,
		"contact":      req.Contact,
		"education":    req.Education,
		"avatar_url":   req.AvatarURL,
	}
	if err := h.profiles.Update(c.Request.Context(), ident.ID, fields); err != nil {
		response.Error(c, errs.FromCall(err))
		return
	}
	response.Success(c, nil)
}
