package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/geopost/middleware"
	"github.com/cppla/geopost/services"
	"github.com/cppla/geopost/utils"
)

// AuthController handles registration, login and session endpoints.
type AuthController struct {
	users *services.UserDirectory
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(users *services.UserDirectory) *AuthController {
	return &AuthController{users: users}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account and returns a token for it.
func (a *AuthController) Register(ctx *gin.Context) {
	var req credentialsRequest
	bindBody(ctx, &req, func() { req = credentialsRequest{} })

	res, err := a.users.Register(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, res)
}

// Login exchanges credentials for a token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req credentialsRequest
	bindBody(ctx, &req, func() { req = credentialsRequest{} })

	res, err := a.users.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// Me echoes the identity carried by the bearer token.
func (a *AuthController) Me(ctx *gin.Context) {
	id, ok := middleware.CurrentIdentity(ctx)
	if !ok {
		utils.Fail(ctx, utils.Unauthorized("authentication required"))
		return
	}
	utils.Success(ctx, gin.H{"userId": id.ID, "username": id.Username})
}

// Logout is stateless: tokens stay valid until expiry and the client discards its copy.
func (a *AuthController) Logout(ctx *gin.Context) {
	ctx.Status(http.StatusNoContent)
}
