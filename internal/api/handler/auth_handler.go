package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/esfera-conectada/internal/api/middleware"
	"github.com/d60-Lab/esfera-conectada/pkg/response"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type passwordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// Register 注册并签发会话令牌
// @Summary 注册
// @Tags 鉴权
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, ident, err := h.provider.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.hub.Attach(c.Request.Context(), *ident)
	response.Success(c, gin.H{"token": token, "identity": ident})
}

// Login 登录
// @Summary 登录
// @Tags 鉴权
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, ident, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.hub.Attach(c.Request.Context(), *ident)
	response.Success(c, gin.H{"token": token, "identity": ident})
}

// Logout 登出：吊销令牌并拆除会话同步状态
// @Summary 登出
// @Tags 鉴权
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	ident := middleware.MustIdentity(c)
	_ = h.provider.SignOut(c.Request.Context(), middleware.Token(c))
	h.hub.Detach(c.Request.Context(), ident.ID)
	response.Success(c, nil)
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Tags 鉴权
// @Accept json
// @Produce json
// @Param request body passwordRequest true "密码信息"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/password [post]
func (h *Handler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ident := middleware.MustIdentity(c)
	if err := h.provider.ChangePassword(c.Request.Context(), ident.ID, req.OldPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
