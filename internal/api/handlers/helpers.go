package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bycarket/api/internal/api/middleware"
	"bycarket/api/internal/models"
	"bycarket/api/internal/utils"
)

// currentUserID extracts the authenticated user's ID from the Gin context.
// Aborts with 401 when the auth middleware did not run or stored garbage.
func currentUserID(c *gin.Context) (utils.SixID, bool) {
	val, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	idStr, ok := val.(string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return utils.SixID{}, false
	}
	userID, err := utils.ParseSixID(idStr)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity"})
		return utils.SixID{}, false
	}
	return userID, true
}

// viewerFromContext builds the Viewer a listing query runs under. Anonymous
// requests get the free-tier public view.
func viewerFromContext(c *gin.Context) models.Viewer {
	viewer := models.Viewer{Role: models.RoleUser}
	if val, exists := c.Get(middleware.ContextKeyUserID); exists {
		if idStr, ok := val.(string); ok {
			if userID, err := utils.ParseSixID(idStr); err == nil {
				viewer.UserID = userID
			}
		}
	}
	viewer.Role = middleware.RoleFromContext(c)
	return viewer
}
