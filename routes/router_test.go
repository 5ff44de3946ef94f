package routes

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/geopost/config"
	"github.com/cppla/geopost/models"
	"github.com/cppla/geopost/realtime"
	"github.com/cppla/geopost/repositories"
	"github.com/cppla/geopost/services"
	"github.com/cppla/geopost/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestMain(m *testing.M) {
	utils.PBKDF2Iterations = 1000
	os.Exit(m.Run())
}

type testApp struct {
	handler http.Handler
	posts   *services.PostService
	sqlDB   *sql.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.AppConfig{
		AppPort:            "5000",
		SecretKey:          testSecret,
		TokenTTLDays:       7,
		AllowedOrigins:     []string{"http://localhost:5173"},
		RateLimitPerMinute: 600,
		DatabaseURI:        "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		GinMode:            "test",
		LogLevel:           "silent",
		BroadcastBackend:   config.BroadcastLocal,
	}
	db, err := config.InitDatabase(cfg, zap.NewNop(), models.All()...)
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	tokens, err := utils.NewTokenService(cfg.SecretKey, 24*time.Hour)
	require.NoError(t, err)

	hub := realtime.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	posts := services.NewPostService(repositories.NewPostRepository(db), realtime.NewLocalBroadcaster(hub))
	t.Cleanup(posts.Wait)

	r := SetupRouter(Deps{
		Config: cfg,
		DB:     db,
		Users:  services.NewUserDirectory(repositories.NewUserRepository(db), tokens),
		Posts:  posts,
		Tokens: tokens,
		Hub:    hub,
	})
	return &testApp{handler: r, posts: posts, sqlDB: sqlDB}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body utils.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error.Code
}

func (a *testApp) register(t *testing.T, username string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": username, "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestRegisterAndConflict(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice", body["username"])
	assert.NotEmpty(t, body["token"])
	assert.NotZero(t, body["userId"])
	assert.NotZero(t, body["expiresAt"])

	w = app.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "password456"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, utils.CodeUsernameConflict, errorCode(t, w))
}

func TestRegisterMalformedBody(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.CodeValidation, errorCode(t, w))

	w = app.do(t, http.MethodPost, "/api/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginMeLogout(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice")

	w := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["token"].(string)

	w = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeInvalidCredentials, errorCode(t, w))

	w = app.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode(t, w)["username"])

	w = app.do(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeInvalidToken, errorCode(t, w))

	w = app.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCreateRequiresBearer(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/posts", "", map[string]interface{}{"message": "hi", "lat": 35, "lng": 135})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeUnauthorized, errorCode(t, w))
}

func TestPostAndFindNearby(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "alice")

	w := app.do(t, http.MethodPost, "/api/posts", token, map[string]interface{}{"message": "hello", "lat": 35, "lng": 135})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "hello", created["message"])
	assert.Equal(t, 35.0, created["lat"])
	assert.Equal(t, 135.0, created["lng"])
	assert.True(t, strings.HasSuffix(created["createdAt"].(string), "Z"))

	w = app.do(t, http.MethodGet, "/api/posts?lat=35&lng=135&radius=100", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Items []struct {
			ID       uint   `json:"id"`
			Message  string `json:"message"`
			Distance int    `json:"distance"`
		} `json:"items"`
		Center struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"center"`
		Radius int `json:"radius"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, "hello", res.Items[0].Message)
	assert.Equal(t, 0, res.Items[0].Distance)
	assert.Equal(t, 100, res.Radius)
	assert.Equal(t, 35.0, res.Center.Lat)

	w = app.do(t, http.MethodGet, "/api/posts?lat=36&lng=135&radius=100", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"center":{"lat":36,"lng":135},"radius":100}`, w.Body.String())
}

func TestCreatePostBoundaries(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "alice")

	w := app.do(t, http.MethodPost, "/api/posts", token, map[string]interface{}{"message": strings.Repeat("a", 280), "lat": 0, "lng": 0})
	assert.Equal(t, http.StatusCreated, w.Code)

	cases := map[string]interface{}{
		"281 chars":    map[string]interface{}{"message": strings.Repeat("a", 281), "lat": 0, "lng": 0},
		"whitespace":   map[string]interface{}{"message": "   ", "lat": 0, "lng": 0},
		"missing lat":  map[string]interface{}{"message": "hi", "lng": 0},
		"null lng":     map[string]interface{}{"message": "hi", "lat": 0, "lng": nil},
		"text lat":     map[string]interface{}{"message": "hi", "lat": "north", "lng": 0},
		"out of range": map[string]interface{}{"message": "hi", "lat": 91, "lng": 0},
		"malformed":    "{",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, "/api/posts", token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, utils.CodeValidation, errorCode(t, w))
		})
	}

	w = app.do(t, http.MethodPost, "/api/posts", token, map[string]interface{}{"message": "strings", "lat": "35.5", "lng": " 135 "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 35.5, decode(t, w)["lat"])
}

func TestCreatePostKeepsMarkupText(t *testing.T) {
	app := newTestApp(t)
	token := app.register(t, "alice")

	msg := "meet at <Main St & 5th> &amp; bring &lt;snacks&gt;"
	w := app.do(t, http.MethodPost, "/api/posts", token, map[string]interface{}{"message": " " + msg + " ", "lat": 0, "lng": 0})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, msg, decode(t, w)["message"])

	w = app.do(t, http.MethodGet, "/api/posts?lat=0&lng=0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, msg, items[0].(map[string]interface{})["message"])
}

func TestListNearbyQueryValidation(t *testing.T) {
	app := newTestApp(t)

	for _, q := range []string{"", "?lat=35", "?lat=abc&lng=1", "?lat=NaN&lng=1", "?lat=95&lng=0"} {
		w := app.do(t, http.MethodGet, "/api/posts"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, utils.CodeValidation, errorCode(t, w), q)
	}

	w := app.do(t, http.MethodGet, "/api/posts?lat=0&lng=0&radius=oops", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, services.DefaultRadius, decode(t, w)["radius"])

	w = app.do(t, http.MethodGet, "/api/posts?lat=0&lng=0&radius=50000", "", nil)
	assert.EqualValues(t, services.MaxRadius, decode(t, w)["radius"])

	w = app.do(t, http.MethodGet, "/api/posts?lat=0&lng=0&radius=99999999999999999999", "", nil)
	assert.EqualValues(t, services.MaxRadius, decode(t, w)["radius"])

	w = app.do(t, http.MethodGet, "/api/posts?lat=0&lng=0&radius=-99999999999999999999", "", nil)
	assert.EqualValues(t, services.MinRadius, decode(t, w)["radius"])
}

func TestMetaRoutes(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = app.do(t, http.MethodGet, "/api/hello", "", nil)
	assert.JSONEq(t, `{"message":"hello from backend"}`, w.Body.String())

	w = app.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, utils.CodeNotFound, errorCode(t, w))
}

func TestHealthDatabaseDown(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.sqlDB.Close())

	w := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
