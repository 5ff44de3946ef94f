package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/geopost/geo"
	"github.com/cppla/geopost/middleware"
	"github.com/cppla/geopost/services"
	"github.com/cppla/geopost/utils"
)

// PostController creates posts and answers nearby queries.
type PostController struct {
	posts *services.PostService
}

// NewPostController creates a new PostController instance.
func NewPostController(posts *services.PostService) *PostController {
	return &PostController{posts: posts}
}

type createPostRequest struct {
	Message string     `json:"message"`
	Lat     coordinate `json:"lat"`
	Lng     coordinate `json:"lng"`
}

// CreatePost stores a post for the authenticated user.
func (p *PostController) CreatePost(ctx *gin.Context) {
	id, ok := middleware.CurrentIdentity(ctx)
	if !ok {
		utils.Fail(ctx, utils.Unauthorized("authentication required"))
		return
	}

	var req createPostRequest
	bindBody(ctx, &req, func() { req = createPostRequest{} })

	view, err := p.posts.Create(ctx.Request.Context(), services.NewPost{
		UserID:  id.ID,
		Message: req.Message,
		Lat:     req.Lat.ptr(),
		Lng:     req.Lng.ptr(),
	})
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, view)
}

// ListNearby returns posts around ?lat&lng within ?radius meters.
func (p *PostController) ListNearby(ctx *gin.Context) {
	lat, okLat := parseFloat(ctx.Query("lat"))
	lng, okLng := parseFloat(ctx.Query("lng"))
	if !okLat || !okLng {
		utils.Fail(ctx, utils.ValidationError("lat and lng query parameters must be numbers"))
		return
	}

	res, err := p.posts.ListNearby(ctx.Request.Context(), geo.Point{Lat: lat, Lng: lng}, services.ParseRadius(ctx.Query("radius")))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, res)
}
