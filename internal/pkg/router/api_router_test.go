package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/cache"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/database"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/imagefetch"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/token"
)

type testAPI struct {
	t     *testing.T
	app   *fiber.App
	db    *gorm.DB
	repos *repository.Repositories
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	t.Setenv("RATE_LIMIT_MAX", "0")

	db, err := database.OpenInMemory(uuid.NewString())
	require.NoError(t, err)
	repos := repository.NewRepositories(db)
	_, _, err = repos.User.EnsureAdmin("admin-pw")
	require.NoError(t, err)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		DB:      db,
		Repos:   repos,
		Issuer:  token.NewIssuer("test-secret", time.Minute),
		Fetcher: imagefetch.New(time.Second),
	})
	return &testAPI{t: t, app: app, db: db, repos: repos}
}

func (a *testAPI) do(method, path, bearer string, body any) (*http.Response, []byte) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, data
}

func (a *testAPI) decode(data []byte, dst any) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(data, dst), string(data))
}

func (a *testAPI) signup(username, password string) string {
	a.t.Helper()
	resp, data := a.do(fiber.MethodPost, "/api/users", "", fiber.Map{"username": username, "password": password})
	require.Equal(a.t, fiber.StatusOK, resp.StatusCode, string(data))
	return a.login(username, password)
}

func (a *testAPI) login(username, password string) string {
	a.t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(fiber.MethodPost, "/api/token", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	require.Equal(a.t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(a.t, "bearer", out.TokenType)
	return out.AccessToken
}

type imageJSON struct {
	ID       uint   `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	OwnerID  uint   `json:"owner_id"`
	Tags     []struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	} `json:"tags"`
}

func (i imageJSON) tagNames() []string {
	names := make([]string, len(i.Tags))
	for n, t := range i.Tags {
		names[n] = t.Name
	}
	return names
}

type errorJSON struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestHelloAndHealth(t *testing.T) {
	api := newTestAPI(t)

	resp, data := api.do(fiber.MethodGet, "/api/", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "Hello from api")

	alice := api.signup("alice", "pw")
	resp, data = api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{
		"url": "http://img.test/a.png", "tags": []string{"sky", "sea"},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))

	resp, data = api.do(fiber.MethodGet, "/api/health", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var health struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Cache    string `json:"cache"`
		Catalog  struct {
			Users  int64 `json:"users"`
			Images int64 `json:"images"`
			Tags   int64 `json:"tags"`
		} `json:"catalog"`
	}
	api.decode(data, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Database)
	assert.Contains(t, []string{"disabled", "ok", "unavailable"}, health.Cache)
	// admin and alice
	assert.EqualValues(t, 2, health.Catalog.Users)
	assert.EqualValues(t, 1, health.Catalog.Images)
	assert.EqualValues(t, 2, health.Catalog.Tags)
}

func TestSignupAndLogin(t *testing.T) {
	api := newTestAPI(t)

	t.Run("admin name is reserved", func(t *testing.T) {
		resp, data := api.do(fiber.MethodPost, "/api/users", "", fiber.Map{"username": "admin", "password": "x"})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		var e errorJSON
		api.decode(data, &e)
		assert.Equal(t, "bad_request", e.Error)
	})

	api.signup("alice", "pw")

	t.Run("duplicate username", func(t *testing.T) {
		resp, _ := api.do(fiber.MethodPost, "/api/users", "", fiber.Map{"username": "alice", "password": "x"})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing password", func(t *testing.T) {
		resp, _ := api.do(fiber.MethodPost, "/api/users", "", fiber.Map{"username": "carol"})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("login errors are indistinguishable", func(t *testing.T) {
		wrong, wrongBody := api.do(fiber.MethodPost, "/api/token", "", fiber.Map{"username": "alice", "password": "nope"})
		unknown, unknownBody := api.do(fiber.MethodPost, "/api/token", "", fiber.Map{"username": "ghost", "password": "nope"})

		assert.Equal(t, fiber.StatusUnauthorized, wrong.StatusCode)
		assert.Equal(t, fiber.StatusUnauthorized, unknown.StatusCode)
		assert.Equal(t, string(wrongBody), string(unknownBody))
		assert.Equal(t, "Bearer", wrong.Header.Get(fiber.HeaderWWWAuthenticate))
	})

	t.Run("json login works too", func(t *testing.T) {
		resp, data := api.do(fiber.MethodPost, "/api/token", "", fiber.Map{"username": "alice", "password": "pw"})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, string(data), "access_token")
	})
}

func TestProfile(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice", "pw")
	api.signup("bob", "pw")

	resp, data := api.do(fiber.MethodGet, "/api/users/me", alice, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"username":"alice"`)
	assert.NotContains(t, string(data), "password")

	resp, _ = api.do(fiber.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = api.do(fiber.MethodPut, "/api/users/me", alice, fiber.Map{"username": "bob"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = api.do(fiber.MethodPut, "/api/users/me", alice, fiber.Map{"password": "new-pw"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	api.login("alice", "new-pw")
}

func TestAdminUserManagement(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.signup("alice", "pw")

	resp, _ := api.do(fiber.MethodGet, "/api/users", alice, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, data := api.do(fiber.MethodGet, "/api/users", admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var users []struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}
	api.decode(data, &users)
	require.Len(t, users, 2)
	assert.True(t, users[0].IsAdmin)

	resp, _ = api.do(fiber.MethodGet, "/api/users?limit=0", admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(fiber.MethodDelete, fmt.Sprintf("/api/users/%d", users[0].ID), admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(fiber.MethodDelete, "/api/users/9999", admin, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(fiber.MethodDelete, fmt.Sprintf("/api/users/%d", users[1].ID), admin, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// the deleted user's token no longer resolves
	resp, _ = api.do(fiber.MethodGet, "/api/users/me", alice, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestImageLifecycle(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice", "pw")
	bob := api.signup("bob", "pw")

	resp, data := api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{
		"url": "http://img.test/cats/My%20Cat.jpg", "description": "cat", "tags": []string{"cats"},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))
	var cat imageJSON
	api.decode(data, &cat)
	assert.Equal(t, "My Cat.jpg", cat.Filename)
	assert.Equal(t, ".jpg", cat.Filetype)
	assert.Equal(t, []string{"cats"}, cat.tagNames())

	t.Run("duplicate url conflicts", func(t *testing.T) {
		resp, data := api.do(fiber.MethodPost, "/api/images", bob, fiber.Map{"url": "http://img.test/cats/My%20Cat.jpg"})
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		var e errorJSON
		api.decode(data, &e)
		assert.Equal(t, "conflict", e.Error)
	})

	t.Run("bulk create skips known urls", func(t *testing.T) {
		resp, data := api.do(fiber.MethodPost, "/api/images/bulk", alice, fiber.Map{
			"urls": []string{"http://img.test/cats/My%20Cat.jpg", "http://img.test/a.png", "http://img.test/b.png"},
			"tags": []string{"batch", "cats"},
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))
		var created []imageJSON
		api.decode(data, &created)
		require.Len(t, created, 2)
		assert.ElementsMatch(t, []string{"batch", "cats"}, created[0].tagNames())
	})

	t.Run("list filters by all tags and is owner scoped", func(t *testing.T) {
		resp, data := api.do(fiber.MethodGet, "/api/images?tags=batch&tags=cats&sort_by=filename&sort_order=asc", alice, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))
		var page struct {
			Total  int64       `json:"total"`
			Images []imageJSON `json:"images"`
		}
		api.decode(data, &page)
		assert.EqualValues(t, 2, page.Total)
		require.Len(t, page.Images, 2)
		assert.Equal(t, "a.png", page.Images[0].Filename)

		resp, data = api.do(fiber.MethodGet, "/api/images", bob, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		api.decode(data, &page)
		assert.EqualValues(t, 0, page.Total)
		assert.Empty(t, page.Images)
	})

	t.Run("list validates paging", func(t *testing.T) {
		for _, q := range []string{"limit=0", "limit=1001", "skip=-1", "limit=abc"} {
			resp, _ := api.do(fiber.MethodGet, "/api/images?"+q, alice, nil)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, q)
		}
	})

	t.Run("foreign images are not found", func(t *testing.T) {
		path := fmt.Sprintf("/api/images/%d", cat.ID)
		resp, _ := api.do(fiber.MethodDelete, path, bob, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		resp, _ = api.do(fiber.MethodPut, path+"/rename", bob, fiber.Map{"filename": "x"})
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		resp, _ = api.do(fiber.MethodPut, path+"/tags", bob, fiber.Map{"tags": []string{"x"}})
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("rename and replace tags", func(t *testing.T) {
		path := fmt.Sprintf("/api/images/%d", cat.ID)
		resp, data := api.do(fiber.MethodPut, path+"/rename", alice, fiber.Map{"filename": "renamed.jpg"})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var img imageJSON
		api.decode(data, &img)
		assert.Equal(t, "renamed.jpg", img.Filename)

		resp, data = api.do(fiber.MethodPut, path+"/tags", alice, fiber.Map{"tags": []string{"pets", "pets"}})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		api.decode(data, &img)
		assert.Equal(t, []string{"pets"}, img.tagNames())

		resp, _ = api.do(fiber.MethodPut, path+"/tags", alice, fiber.Map{"tags": []string{""}})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bulk add tags", func(t *testing.T) {
		resp, data := api.do(fiber.MethodPost, "/api/images/bulk-add-tags", alice, fiber.Map{
			"image_ids": []uint{cat.ID, 9999}, "tags": []string{"pets", "fav"},
		})
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))
		var images []imageJSON
		api.decode(data, &images)
		require.Len(t, images, 1)
		assert.ElementsMatch(t, []string{"pets", "fav"}, images[0].tagNames())

		resp, _ = api.do(fiber.MethodPost, "/api/images/bulk-add-tags", bob, fiber.Map{
			"image_ids": []uint{cat.ID}, "tags": []string{"x"},
		})
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("bulk delete", func(t *testing.T) {
		resp, data := api.do(fiber.MethodPost, "/api/images/bulk-delete", bob, fiber.Map{"image_ids": []uint{cat.ID}})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.JSONEq(t, fmt.Sprintf(`{"status":"success","deleted_ids":[%d]}`, cat.ID), string(data))

		// bob's request did not touch alice's image
		resp, _ = api.do(fiber.MethodDelete, fmt.Sprintf("/api/images/%d", cat.ID), alice, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("requires authentication", func(t *testing.T) {
		resp, _ := api.do(fiber.MethodGet, "/api/images", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestPublicRandom(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice", "pw")

	resp, _ := api.do(fiber.MethodGet, "/api/random", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{"url": "http://img.test/a.png", "tags": []string{"tagA"}})
	api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{"url": "http://img.test/b.png", "tags": []string{"tagB"}})

	for i := 0; i < 10; i++ {
		resp, data := api.do(fiber.MethodGet, "/api/random?tag=tagA", "", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"url":"http://img.test/a.png"}`, string(data))
	}

	resp, _ = api.do(fiber.MethodGet, "/api/random?tag=missing", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestKeyedRandomProxy(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice", "pw")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-data"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{"url": upstream.URL + "/ok.jpg", "tags": []string{"good"}})
	api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{"url": upstream.URL + "/gone.jpg", "tags": []string{"broken"}})

	createKey := func(name string, and, or []string) string {
		resp, data := api.do(fiber.MethodPost, "/api/keys", alice, fiber.Map{"name": name, "tags_and": and, "tags_or": or})
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(data))
		var key struct {
			Key     string `json:"key"`
			TagsAnd []any  `json:"tags_and"`
		}
		api.decode(data, &key)
		require.Len(t, key.Key, 36)
		return key.Key
	}

	good := createKey("good", []string{"good"}, nil)
	broken := createKey("broken", nil, []string{"broken", "nothing"})

	resp, data := api.do(fiber.MethodGet, "/api/v1/random/"+good, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "jpeg-data", string(data))

	resp, data = api.do(fiber.MethodGet, "/api/v1/random/"+broken, "", nil)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	var e errorJSON
	api.decode(data, &e)
	assert.Equal(t, "fetch_failed", e.Error)

	resp, _ = api.do(fiber.MethodGet, "/api/v1/random/"+uuid.NewString(), "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	t.Run("duplicate key name conflicts", func(t *testing.T) {
		resp, _ := api.do(fiber.MethodPost, "/api/keys", alice, fiber.Map{"name": "good"})
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})

	t.Run("list and delete keys", func(t *testing.T) {
		resp, data := api.do(fiber.MethodGet, "/api/keys", alice, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var keys []struct {
			ID  uint   `json:"id"`
			Key string `json:"key"`
		}
		api.decode(data, &keys)
		require.Len(t, keys, 2)

		bob := api.signup("bob", "pw")
		resp, _ = api.do(fiber.MethodDelete, fmt.Sprintf("/api/keys/%d", keys[0].ID), bob, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

		resp, _ = api.do(fiber.MethodDelete, fmt.Sprintf("/api/keys/%d", keys[0].ID), alice, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		resp, _ = api.do(fiber.MethodGet, "/api/v1/random/"+keys[0].Key, "", nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestLimiterUsesRedisWhenCacheEnabled(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.Connect(mr.Addr(), "")
	t.Cleanup(func() { _ = cache.Close() })

	t.Setenv("RATE_LIMIT_MAX", "2")
	t.Setenv("RATE_LIMIT_WINDOW", "60")

	app := fiber.New()
	app.Use(newLimiter())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	mr.Select(1)
	assert.NotEmpty(t, mr.Keys())
}

func TestCreateImageTagConflict(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice", "pw")

	// the tag row written by a concurrent request is not visible to this one
	err := api.db.Callback().Create().Before("gorm:create").Register("test:hidden_tag", func(tx *gorm.DB) {
		if tag, ok := tx.Statement.Dest.(*models.Tag); ok && tag.Name == "raced" {
			tag.Name = "raced-elsewhere"
		}
	})
	require.NoError(t, err)

	resp, data := api.do(fiber.MethodPost, "/api/images", alice, fiber.Map{
		"url": "http://img.test/race.png", "tags": []string{"raced"},
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	var e errorJSON
	api.decode(data, &e)
	assert.Equal(t, "conflict", e.Error)
	assert.Equal(t, "Tag could not be resolved, please retry", e.Message)

	resp, data = api.do(fiber.MethodGet, "/api/images", alice, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var page struct {
		Total int64 `json:"total"`
	}
	api.decode(data, &page)
	assert.Zero(t, page.Total)
}
