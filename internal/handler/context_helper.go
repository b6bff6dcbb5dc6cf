package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (service.Actor, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Actor{}, appErrors.ErrUnauthorized
	}
	return service.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// resolveStudent decides whose enrollment a request targets. Students always act for
// themselves; staff must name the student.
func resolveStudent(actor service.Actor, requested string) (string, error) {
	if actor.Role == models.RoleStudent {
		if requested != "" && requested != actor.ID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "students can only enroll themselves")
		}
		return actor.ID, nil
	}
	if !actor.Role.IsStaff() {
		return "", appErrors.ErrForbidden
	}
	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	return requested, nil
}
