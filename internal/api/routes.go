package api

import (
	"net/http"

	"github.com/Leonel-Flores1704/Atlas/internal/auth"
	apperrors "github.com/Leonel-Flores1704/Atlas/internal/errors"
	"github.com/Leonel-Flores1704/Atlas/internal/services"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authenticator *auth.Authenticator, workspaces *services.WorkspaceService, exporter *services.TranscriptExporter) {
	api := r.Group("/api", authenticator.AuthMiddleware())
	{
		api.POST("/ask", askHandler(workspaces.Answerer()))
		api.POST("/chat/message", sendChatMessageHandler())
		api.GET("/chat/sessions", listSessionsHandler())
		api.POST("/chat/sessions", createSessionHandler())
		api.GET("/chat/sessions/:id", getSessionHandler())
		api.POST("/chat/sessions/:id/activate", activateSessionHandler())
		api.DELETE("/chat/sessions/:id", deleteSessionHandler())
		api.GET("/chat/sessions/:id/export.pdf", exportPDFHandler(exporter))
		api.GET("/chat/sessions/:id/export.bib", exportBibTeXHandler(exporter))
		api.GET("/tokens", getTokensHandler())
		api.POST("/subscription", changeSubscriptionHandler())
		api.GET("/metrics", getMetricsHandler(workspaces))
	}
}

// workspaceFrom fetches the workspace resolved by the auth middleware,
// writing a 401 when there is none.
func workspaceFrom(c *gin.Context) (*services.QuerySessionManager, bool) {
	workspace, ok := auth.CurrentWorkspace(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
	}
	return workspace, ok
}

// askHandler exposes the answering contract as is: no budget, no session.
func askHandler(answerer services.Answerer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Query string `json:"query" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		result := answerer.Ask(c.Request.Context(), request.Query)
		if !result.Answered() {
			apperrors.HandleError(c, result.Err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"answer":     result.Answer,
			"confidence": result.Confidence,
			"sources":    result.Sources,
		})
	}
}

func sendChatMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		var request struct {
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		exchange, err := workspace.Submit(c.Request.Context(), request.Message)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, exchange)
	}
}

func listSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sessions":  workspace.Sessions(),
			"active_id": workspace.ActiveSession().ID,
		})
	}
}

func createSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		c.JSON(http.StatusCreated, workspace.CreateSession())
	}
}

func getSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		session, err := workspace.Session(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session": session,
			"pending": workspace.Pending(session.ID),
		})
	}
}

func activateSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		if err := workspace.SwitchSession(c.Param("id")); err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, workspace.ActiveSession())
	}
}

func deleteSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		if err := workspace.DeleteSession(c.Param("id")); err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sessions":  workspace.Sessions(),
			"active_id": workspace.ActiveSession().ID,
		})
	}
}

func getTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, workspace.Budget())
	}
}

// changeSubscriptionHandler simulates a plan change. There is no payment
// step; the tier switches immediately.
func changeSubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := workspaceFrom(c)
		if !ok {
			return
		}

		var request struct {
			Tier string `json:"tier" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		tier, err := services.ParseTier(request.Tier)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		budget, err := workspace.ChangeTier(tier)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, budget)
	}
}

func getMetricsHandler(workspaces *services.WorkspaceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, workspaces.Metrics())
	}
}
