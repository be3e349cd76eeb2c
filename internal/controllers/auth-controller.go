package controllers

import (
	"errors"
	"net/http"

	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionIssuer signs session cookies for logged in users
type SessionIssuer interface {
	IssueSession(userID uint, email string) (string, error)
}

// CookieSettings controls the session cookie written at login
type CookieSettings struct {
	Name   string
	MaxAge int // seconds
	Secure bool
}

type AuthController struct {
	userService services.UserService
	sessions    SessionIssuer
	cookie      CookieSettings
}

func NewAuthController(userService services.UserService, sessions SessionIssuer, cookie CookieSettings) *AuthController {
	return &AuthController{
		userService: userService,
		sessions:    sessions,
		cookie:      cookie,
	}
}

// Register godoc
// @Summary Register a user
// @Description Create a resource owner account
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body object{email=string,password=string,name=string} true "User details"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 409 {object} models.APIError
// @Router /api/v1/auth/register [post]
func (ac *AuthController) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8,max=72"`
		Name     string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	user := &models.User{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}

	err := ac.userService.CreateUser(c.Request.Context(), user)
	if errors.Is(err, services.ErrUserAlreadyExists) {
		c.JSON(http.StatusConflict, models.NewAPIError(models.ErrUserExists, "A user with this email already exists"))
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "User creation failed"))
		return
	}

	log.WithField("user_id", user.ID).Info("User registered")
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email, "name": user.Name})
}

// Login godoc
// @Summary Log in
// @Description Authenticate with email and password and receive the session cookie used by the authorization endpoint
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body object{email=string,password=string} true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 401 {object} models.APIError
// @Router /api/v1/auth/login [post]
func (ac *AuthController) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewAPIError(models.ErrValidationFailed, err.Error()))
		return
	}

	user, err := ac.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, models.NewAPIError(models.ErrUnauthorized, "Invalid email or password"))
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to authenticate user")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Login failed"))
		return
	}

	session, err := ac.sessions.IssueSession(user.ID, user.Email)
	if err != nil {
		log.WithError(err).Error("Failed to issue session")
		c.JSON(http.StatusInternalServerError, models.NewAPIError(models.ErrInternalServer, "Login failed"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ac.cookie.Name, session, ac.cookie.MaxAge, "/", "", ac.cookie.Secure, true)
	log.WithFields(logrus.Fields{"user_id": user.ID}).Info("User logged in")
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

// Logout godoc
// @Summary Log out
// @Description Clear the session cookie
// @Tags Auth
// @Success 204 "Logged out"
// @Router /api/v1/auth/logout [post]
func (ac *AuthController) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ac.cookie.Name, "", -1, "/", "", ac.cookie.Secure, true)
	c.Status(http.StatusNoContent)
}
