package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/Tavern/config"
	"github.com/Gopher0727/Tavern/internal/activity"
	"github.com/Gopher0727/Tavern/internal/handler"
	"github.com/Gopher0727/Tavern/internal/pkg/kafka"
	"github.com/Gopher0727/Tavern/internal/repository/memory"
	"github.com/Gopher0727/Tavern/internal/service"
	"github.com/Gopher0727/Tavern/internal/storage"
	"github.com/Gopher0727/Tavern/middleware/jwt"
	logger "github.com/Gopher0727/Tavern/middleware/log"
	"github.com/Gopher0727/Tavern/utils/ratelimit"
	"github.com/Gopher0727/Tavern/utils/snowflake"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine   *gin.Engine
	redis    *miniredis.Miniredis
	activity *activity.Feed
}

func newTestServer(t *testing.T, limits config.RateLimitConfig) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	blobs, err := storage.NewDiskBlobStore(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)
	ids, err := snowflake.NewGenerator(snowflake.Config{WorkerID: 3})
	require.NoError(t, err)

	log := logger.NewNop()
	deps := service.Deps{Store: memory.NewStore(), Logger: log}
	tokens := jwt.NewTokenManager("router-secret", 1, 24)

	feed := activity.NewFeed(client, 20)
	mm := NewMiddlewareManager(tokens, ratelimit.NewWindowLimiter(client, zap.NewNop(), false), log, limits)
	engine := NewRouter(mm, &Handlers{
		Member:       handler.NewMemberHandler(service.NewMemberService(deps, tokens, blobs), 1<<20),
		Tavern:       handler.NewTavernHandler(service.NewTavernService(deps)),
		GameDay:      handler.NewGameDayHandler(service.NewGameDayService(deps)),
		Feed:         handler.NewFeedHandler(service.NewFeedService(deps, blobs, ids), 1<<20),
		File:         handler.NewFileHandler(service.NewFileService(deps, blobs, ids, 1<<20), 1<<20),
		Notification: handler.NewNotificationHandler(service.NewNotificationService(deps)),
		Blob:         handler.NewBlobHandler(blobs),
		Activity:     handler.NewActivityHandler(service.NewActivityService(deps, feed)),
	})
	return &testServer{engine: engine, redis: mr, activity: feed}
}

func generousLimits() config.RateLimitConfig {
	return config.RateLimitConfig{RegisterPerMinute: 100, LoginPerMinute: 100, APIPerMinute: 1000}
}

type envelope struct {
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

// signup registers and logs in, returning the member id and token.
func (s *testServer) signup(t *testing.T, username string) (string, string) {
	t.Helper()
	email := username + "@tavern.test"
	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": username, "email": email, "password": "hunter22"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token  string `json:"token"`
		Member struct {
			ID string `json:"id"`
		} `json:"member"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	return login.Member.ID, login.Token
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestRouter_Authentication(t *testing.T) {
	s := newTestServer(t, generousLimits())

	t.Run("missing header", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/api/v1/members/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, env.Success)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/members/me", nil)
		req.Header.Set("Authorization", "Token abc")
		w, env := s.serve(t, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid authorization header format", env.Message)
	})

	t.Run("foreign token", func(t *testing.T) {
		token, err := jwt.NewTokenManager("other-secret", 1, 24).GenerateToken(jwt.Identity{MemberID: "m1", Email: "x@y.test"})
		require.NoError(t, err)
		w, env := s.do(t, http.MethodGet, "/api/v1/members/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid token", env.Message)
	})

	t.Run("profile", func(t *testing.T) {
		id, token := s.signup(t, "strider")
		w, env := s.do(t, http.MethodGet, "/api/v1/members/me", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		profile := decode[struct {
			Handle string `json:"handle"`
			Member struct {
				ID string `json:"id"`
			} `json:"member"`
		}](t, env)
		assert.Equal(t, id, profile.Member.ID)
		assert.True(t, strings.HasPrefix(profile.Handle, "strider#"))
	})
}

func TestRouter_TraceID(t *testing.T) {
	s := newTestServer(t, generousLimits())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "trace-123")
	w, _ := s.serve(t, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get(TraceHeader))

	w, _ = s.serve(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get(TraceHeader))
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RegisterPerMinute: 100, LoginPerMinute: 2, APIPerMinute: 1000})
	s.signup(t, "samwise") // one login

	body := gin.H{"email": "samwise@tavern.test", "password": "wrong-password"}
	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", env.Message)
}

func TestRouter_TavernWorkflow(t *testing.T) {
	s := newTestServer(t, generousLimits())
	_, dmToken := s.signup(t, "gandalf")
	pippinID, pippinToken := s.signup(t, "pippin")

	w, env := s.do(t, http.MethodPost, "/api/v1/taverns", dmToken, gin.H{"name": "Green Dragon", "capacity": 4})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tavernID := decode[struct {
		ID string `json:"id"`
	}](t, env).ID

	w, _ = s.do(t, http.MethodPost, "/api/v1/taverns", dmToken, gin.H{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// pippin asks to join, gandalf accepts.
	w, _ = s.do(t, http.MethodPost, "/api/v1/taverns/"+tavernID+"/join-requests", pippinToken, gin.H{"receiver_email": "gandalf@tavern.test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodGet, "/api/v1/notifications", dmToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]struct {
		ID string `json:"id"`
	}](t, env)
	require.Len(t, notes, 1)

	w, _ = s.do(t, http.MethodPost, "/api/v1/notifications/"+notes[0].ID+"/seen", dmToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/taverns/"+tavernID+"/join-requests/accept", dmToken, gin.H{"requester_id": pippinID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodGet, "/api/v1/taverns/"+tavernID+"/members", pippinToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]json.RawMessage](t, env), 2)

	// Only the DM schedules and concludes.
	when := "2099-01-01T18:00:00Z"
	w, _ = s.do(t, http.MethodPost, "/api/v1/taverns/"+tavernID+"/gamedays", pippinToken, gin.H{"scheduled_at": when})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/taverns/"+tavernID+"/gamedays", dmToken, gin.H{"scheduled_at": when})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	gameDayID := decode[struct {
		ID string `json:"id"`
	}](t, env).ID

	w, env = s.do(t, http.MethodPost, "/api/v1/gamedays/"+gameDayID+"/conclude", dmToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode[struct {
		Tavern struct {
			CurrentExperience int `json:"current_experience"`
		} `json:"tavern"`
	}](t, env)
	assert.Equal(t, service.GameDayReward, outcome.Tavern.CurrentExperience)

	w, _ = s.do(t, http.MethodPost, "/api/v1/gamedays/"+gameDayID+"/conclude", dmToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/taverns/missing", dmToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The activity consumer is not running here, so record directly.
	require.NoError(t, s.activity.Record(context.Background(), kafka.Event{Type: kafka.EventGameDayConcluded, TavernID: tavernID, ActorID: "dm"}))
	w, env = s.do(t, http.MethodGet, "/api/v1/taverns/"+tavernID+"/activity?limit=5", pippinToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	events := decode[[]kafka.Event](t, env)
	require.Len(t, events, 1)
	assert.Equal(t, kafka.EventGameDayConcluded, events[0].Type)

	w, _ = s.do(t, http.MethodGet, "/api/v1/taverns/"+tavernID+"/activity?limit=abc", pippinToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartRequest(t *testing.T, path, token string, fields map[string]string, fileField, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRouter_FeedAndFiles(t *testing.T) {
	s := newTestServer(t, generousLimits())
	_, token := s.signup(t, "bilbo")

	_, env := s.do(t, http.MethodPost, "/api/v1/taverns", token, gin.H{"name": "Bag End", "capacity": 2})
	tavernID := decode[struct {
		ID string `json:"id"`
	}](t, env).ID

	t.Run("post with image", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/taverns/"+tavernID+"/posts", token,
			map[string]string{"title": "Party tree", "content": "Eleventy-one candles on the cake."},
			"image", "cake.png", []byte("\x89PNG cake"))
		w, env := s.serve(t, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		post := decode[struct {
			ID       string `json:"id"`
			ImageURL string `json:"image_url"`
		}](t, env)
		require.True(t, strings.HasPrefix(post.ImageURL, "http://localhost/files/"))

		// The image is served from the public files route.
		w, _ = s.serve(t, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(post.ImageURL, "http://localhost"), nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "\x89PNG cake", w.Body.String())

		w, env = s.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/like", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "added", env.Message)
	})

	t.Run("post without image", func(t *testing.T) {
		req := multipartRequest(t, "/api/v1/taverns/"+tavernID+"/posts", token,
			map[string]string{"title": "Second breakfast", "content": "Then elevenses, luncheon and tea."}, "", "", nil)
		w, _ := s.serve(t, req)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("upload and download", func(t *testing.T) {
		w, env := s.do(t, http.MethodPost, "/api/v1/taverns/"+tavernID+"/folders", token, gin.H{"name": "Maps"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		folderID := decode[struct {
			ID string `json:"id"`
		}](t, env).ID

		req := multipartRequest(t, "/api/v1/folders/"+folderID+"/items", token,
			map[string]string{"note": "do not lose"}, "file", "map.txt", []byte("x marks the spot"))
		w, env = s.serve(t, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		itemID := decode[struct {
			ID string `json:"id"`
		}](t, env).ID

		req = multipartRequest(t, "/api/v1/folders/"+folderID+"/items", token, nil, "file", "map.txt", []byte("again"))
		w, _ = s.serve(t, req)
		assert.Equal(t, http.StatusConflict, w.Code)

		req = multipartRequest(t, "/api/v1/folders/"+folderID+"/items", token, nil, "", "", nil)
		w, _ = s.serve(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = s.do(t, http.MethodGet, "/api/v1/items/"+itemID, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "x marks the spot", w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Disposition"), "map.txt")

		w, _ = s.do(t, http.MethodDelete, "/api/v1/items/"+itemID, token, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w, _ = s.do(t, http.MethodGet, "/api/v1/items/"+itemID, token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_ProfilePicture(t *testing.T) {
	s := newTestServer(t, generousLimits())
	_, token := s.signup(t, "arwen")

	req := multipartRequest(t, "/api/v1/members/me/picture", token, nil, "image", "evenstar.png", []byte("\x89PNG star"))
	req.Method = http.MethodPut
	w, env := s.serve(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	member := decode[struct {
		ProfilePicture string `json:"profile_picture"`
	}](t, env)
	require.True(t, strings.HasPrefix(member.ProfilePicture, "http://localhost/files/"))

	w, _ = s.serve(t, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(member.ProfilePicture, "http://localhost"), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "\x89PNG star", w.Body.String())

	w, env = s.do(t, http.MethodGet, "/api/v1/members/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), member.ProfilePicture)

	req = multipartRequest(t, "/api/v1/members/me/picture", token, nil, "", "", nil)
	req.Method = http.MethodPut
	w, _ = s.serve(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = multipartRequest(t, "/api/v1/members/me/picture", token, nil, "image", "evenstar.gif", []byte("GIF89a"))
	req.Method = http.MethodPut
	w, _ = s.serve(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_DiscoverTaverns(t *testing.T) {
	s := newTestServer(t, generousLimits())
	_, frodoToken := s.signup(t, "frodo")
	_, samToken := s.signup(t, "sam")

	w, _ := s.do(t, http.MethodPost, "/api/v1/taverns", frodoToken, gin.H{"name": "Green Dragon", "capacity": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = s.do(t, http.MethodPost, "/api/v1/taverns", samToken, gin.H{"name": "Ivy Bush", "capacity": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := s.do(t, http.MethodGet, "/api/v1/taverns/discover", samToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	taverns := decode[[]struct {
		Name string `json:"name"`
	}](t, env)
	require.Len(t, taverns, 1)
	assert.Equal(t, "Green Dragon", taverns[0].Name)

	w, env = s.do(t, http.MethodGet, "/api/v1/taverns/discover?page=2", samToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]json.RawMessage](t, env))

	w, _ = s.do(t, http.MethodGet, "/api/v1/taverns/discover?page=0", samToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/taverns/discover?page=abc", samToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Recovery(t *testing.T) {
	feed := activity.NewFeed(client, 20)
	mm := NewMiddlewareManager(jwt.NewTokenManager("s", 1, 1), nil, logger.NewNop(), config.RateLimitConfig{})
	r := gin.New()
	r.Use(mm.Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
