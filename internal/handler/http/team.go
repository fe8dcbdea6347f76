package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"team-caltalk/internal/service"
)

// TeamHandler 封装了团队管理相关的 HTTP 处理逻辑
type TeamHandler struct {
	teamService *service.TeamService
}

// NewTeamHandler 创建 TeamHandler 实例
func NewTeamHandler(teamService *service.TeamService) *TeamHandler {
	return &TeamHandler{teamService: teamService}
}

// CreateTeamRequest 定义创建团队请求的结构体
type CreateTeamRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// CreateTeam 处理创建团队的请求
func (h *TeamHandler) CreateTeam(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateTeam: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	team, err := h.teamService.CreateTeam(c.Request.Context(), userID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logCtx.WithFields(logrus.Fields{"team_id": team.ID, "invite_code": team.InviteCode}).Info("Handler.CreateTeam: Team created")
	SuccessResponse(c, http.StatusCreated, gin.H{
		"message": "Team created successfully",
		"team":    team,
	})
}

// JoinTeamRequest 定义加入团队请求的结构体
type JoinTeamRequest struct {
	InviteCode string `json:"invite_code" binding:"required,len=6"`
}

// JoinTeam 处理用户通过邀请码加入团队的请求
func (h *TeamHandler) JoinTeam(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req JoinTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinTeam: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: invite_code is required")
		return
	}

	team, err := h.teamService.JoinTeam(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("team_id", team.ID).Info("Handler.JoinTeam: User joined team")
	SuccessResponse(c, http.StatusOK, gin.H{
		"message": "Joined team successfully",
		"team_id": team.ID,
	})
}
