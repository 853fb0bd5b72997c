package charity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestClient_LikeCampaign_UnwrapsDataAndForwardsToken(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"campaign":{"_id":"c1","analytics":{"liked":true,"likes":3}}}}`))
	})

	ctx := WithAccessToken(context.Background(), "tok-1")
	res, err := c.LikeCampaign(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/campaigns/c1/like", gotPath)

	liked, ok := res.AuthoritativeLiked()
	assert.True(t, ok)
	assert.True(t, liked)
}

func TestClient_UnlikeCampaign_WithoutPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	})

	res, err := c.UnlikeCampaign(context.Background(), "c1")
	require.NoError(t, err)
	_, ok := res.AuthoritativeLiked()
	assert.False(t, ok)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantMessage  string
		wantDetails  int
		unauthorized bool
	}{
		{"401 未授权", http.StatusUnauthorized, `{"error":"Token expired"}`, "Token expired", 0, true},
		{"消息含 unauthorized", http.StatusForbidden, `{"message":"Unauthorized access"}`, "Unauthorized access", 0, true},
		{"字段校验失败", http.StatusBadRequest, `{"error":"Validation failed","details":[{"msg":"Title too short","param":"title"},{"message":"Goal invalid"}]}`, "Validation failed", 2, false},
		{"非 JSON 响应", http.StatusInternalServerError, `boom`, "Internal Server Error", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.LikeCampaign(context.Background(), "c1")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Len(t, apiErr.Details, tt.wantDetails)
			assert.Equal(t, tt.unauthorized, apiErr.Unauthorized())
		})
	}
}

func TestAPIError_ErrorJoinsDetails(t *testing.T) {
	err := &APIError{
		Message: "Validation failed",
		Details: []FieldDetail{{Msg: "Title too short"}, {Message: "Goal invalid"}},
	}
	assert.Equal(t, "Validation failed: Title too short, Goal invalid", err.Error())
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: base, Timeout: time.Second})
	_, err := c.GetCampaign(context.Background(), "c1")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Network)
	assert.Equal(t, NetworkErrorMessage, apiErr.Message)
}

func TestClient_CreateDraftAndPublish(t *testing.T) {
	var bodies []map[string]interface{}
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]interface{}
		_ = json.Unmarshal(raw, &m)
		bodies = append(bodies, m)
		paths = append(paths, r.Method+" "+r.URL.Path)

		if r.URL.Path == "/campaigns/drafts" {
			_, _ = w.Write([]byte(`{"success":true,"data":{"campaign":{"_id":"d1","status":"draft"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"campaign":{"_id":"d1","status":"active"}}}`))
	})

	goal := 500.0
	created, err := c.CreateDraft(context.Background(), &CampaignInput{Title: "short"})
	require.NoError(t, err)
	assert.Equal(t, "d1", created.Campaign.ID)

	campaign, err := c.PublishCampaign(context.Background(), "d1", &CampaignInput{Title: "Clean Water Initiative", Goal: &goal})
	require.NoError(t, err)
	assert.Equal(t, "active", campaign.Status)

	require.Len(t, bodies, 2)
	assert.Equal(t, []string{"POST /campaigns/drafts", "PUT /campaigns/d1"}, paths)
	assert.Equal(t, map[string]interface{}{"title": "short"}, bodies[0])
	assert.Equal(t, "active", bodies[1]["status"])
	assert.Equal(t, 500.0, bodies[1]["goal"])
}

func TestClient_UploadCampaignImages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["images"]
		assert.Len(t, files, 2)
		_, _ = w.Write([]byte(`{"images":[{"filename":"a.png","url":"/uploads/a.png","originalName":"a.png","size":3,"mimetype":"image/png"},{"filename":"b.png","url":"/uploads/b.png","originalName":"b.png","size":3,"mimetype":"image/png"}]}`))
	})

	images, err := c.UploadCampaignImages(context.Background(), []ImageFile{
		{Name: "a.png", ContentType: "image/png", Data: []byte("abc")},
		{Name: "b.png", ContentType: "image/png", Data: []byte("def")},
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "a.png", images[0].Filename)
	assert.Equal(t, "/uploads/b.png", images[1].URL)
}

func TestClient_GetMyDrafts_CacheBusterAndShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"裸数组", `[{"_id":"d1","title":"A"}]`},
		{"data 包装数组", `{"success":true,"data":[{"_id":"d1","title":"A"}]}`},
		{"drafts 字段", `{"success":true,"data":{"drafts":[{"_id":"d1","title":"A"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/campaigns/user/drafts", r.URL.Path)
				assert.NotEmpty(t, r.URL.Query().Get("_"))
				_, _ = w.Write([]byte(tt.body))
			})
			c.now = func() time.Time { return time.UnixMilli(1700000000000) }

			drafts, err := c.GetMyDrafts(context.Background())
			require.NoError(t, err)
			require.Len(t, drafts, 1)
			assert.Equal(t, "d1", drafts[0].ID)
		})
	}
}

func TestClient_GetMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/me", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"user":{"_id":"u1","name":"Ann","email":"ann@x.org","profile":{"organization":{"name":"Acme"}}}}}`))
	})

	user, err := c.GetMe(context.Background())
	require.NoError(t, err)
	name, email := user.OrganizationContact()
	assert.Equal(t, "Acme", name)
	assert.Equal(t, "ann@x.org", email)
}

func TestCampaign_ImageURLs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"字符串数组", `["/uploads/a.png","/uploads/b.png"]`, []string{"/uploads/a.png", "/uploads/b.png"}},
		{"对象数组", `[{"url":"/uploads/a.png"},{"url":"/uploads/b.png"},{"url":"/uploads/c.png"}]`, []string{"/uploads/a.png", "/uploads/b.png", "/uploads/c.png"}},
		{"对象缺少 url", `[{"url":""},{"url":"/uploads/b.png"}]`, []string{"/uploads/b.png"}},
		{"格式不对", `{"url":"/uploads/a.png"}`, nil},
		{"空", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Campaign{Images: []byte(tt.raw)}
			assert.Equal(t, tt.want, c.ImageURLs())
		})
	}
}

func TestCampaign_FlexibleFields(t *testing.T) {
	var c Campaign
	raw := `{"_id":"c1","location":"Nairobi","images":[{"url":"/uploads/x.png"},{"url":"/uploads/y.png?v=1"}],"targetAmount":800}`
	require.NoError(t, json.NewDecoder(strings.NewReader(raw)).Decode(&c))

	assert.Equal(t, Location{City: "Nairobi"}, c.LocationValue())
	assert.Equal(t, []string{"/uploads/x.png", "/uploads/y.png?v=1"}, c.ImageURLs())
	goal, ok := c.GoalAmount()
	assert.True(t, ok)
	assert.Equal(t, 800.0, goal)

	img := UploadedImageFromURL("/uploads/y.png?v=1")
	assert.Equal(t, "y.png", img.Filename)
	assert.Equal(t, int64(0), img.Size)
}
