package handler

import (
	"github.com/d60-Lab/esfera-conectada/internal/repository"
	"github.com/d60-Lab/esfera-conectada/internal/service"
	"github.com/d60-Lab/esfera-conectada/internal/session"
)

// Handler 汇聚各路由的处理方法
type Handler struct {
	provider   session.Provider
	hub        *service.Hub
	dispatcher *service.Dispatcher

	profiles repository.ProfileRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	likes    repository.LikeRepository
	subs     repository.SubscriptionRepository
	messages repository.MessageRepository
	notifs   repository.NotificationRepository

	pageSize int
}

func New(
	provider session.Provider,
	hub *service.Hub,
	dispatcher *service.Dispatcher,
	profiles repository.ProfileRepository,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	likes repository.LikeRepository,
	subs repository.SubscriptionRepository,
	messages repository.MessageRepository,
	notifs repository.NotificationRepository,
	pageSize int,
) *Handler {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Handler{
		provider:   provider,
		hub:        hub,
		dispatcher: dispatcher,
		profiles:   profiles,
		posts:      posts,
		comments:   comments,
		likes:      likes,
		subs:       subs,
		messages:   messages,
		notifs:     notifs,
		pageSize:   pageSize,
	}
}
