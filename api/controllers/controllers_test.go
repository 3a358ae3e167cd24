package controllers

import (
	"github.com/klauspost/compress/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/codesync-go/api/middlewares"
	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/broker"
	"github.com/moyoez/codesync-go/presence"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/store"
	"github.com/moyoez/codesync-go/types"
)

type recorder struct {
	id     string
	events [][]byte
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(d broker.Delivery) bool {
	r.events = append(r.events, d.Body)
	return true
}

type testEnv struct {
	router   *gin.Engine
	registry *session.Registry
	broker   *broker.Broker
	presence *presence.Tracker
	auth     *auth.Auth
}

// setupRouter creates a test router with every REST endpoint
func setupRouter(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	b := broker.New()
	p := presence.New(b)
	registry := session.NewRegistry(session.Options{ChatHistory: 10}, b, nil)
	a := auth.New(store.NewMemory(), types.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour})
	t.Cleanup(registry.Close)

	sessionCtrl := NewSessionController(registry, p, "http://editor.test")
	treeCtrl := NewTreeController(registry, b, types.SessionConfig{SearchLimit: 100, MaxUploadBytes: 1 << 20})
	userCtrl := NewUserController(a)

	router := gin.New()
	router.POST("/api/sessions", sessionCtrl.HandleCreate)
	router.GET("/api/sessions", sessionCtrl.HandleList)
	router.GET("/api/sessions/:id", sessionCtrl.HandleGet)
	router.DELETE("/api/sessions/:id", sessionCtrl.HandleDelete)
	router.GET("/api/sessions/:id/participants", sessionCtrl.HandleParticipants)
	router.GET("/api/sessions/:id/chat", sessionCtrl.HandleChat)
	router.GET("/api/sessions/:id/qrcode", sessionCtrl.HandleQRCode)

	trees := router.Group("/api/tree/:id")
	{
		trees.GET("", treeCtrl.HandleGet)
		trees.POST("", treeCtrl.HandleCreate)
		trees.DELETE("", treeCtrl.HandleDelete)
		trees.PUT("/content", treeCtrl.HandleWriteContent)
		trees.GET("/file", treeCtrl.HandleReadFile)
		trees.POST("/rename", treeCtrl.HandleRename)
		trees.POST("/move", treeCtrl.HandleMove)
		trees.POST("/duplicate", treeCtrl.HandleDuplicate)
		trees.GET("/search", treeCtrl.HandleSearch)
		trees.GET("/download", treeCtrl.HandleDownload)
		trees.POST("/upload", treeCtrl.HandleUpload)
	}

	users := router.Group("/api/users")
	{
		users.POST("/register", userCtrl.HandleRegister)
		users.POST("/login", userCtrl.HandleLogin)
		users.POST("/logout", middlewares.Authenticate(a, true), userCtrl.HandleLogout)
		users.GET("/me", middlewares.Authenticate(a, true), userCtrl.HandleMe)
	}
	return &testEnv{router: router, registry: registry, broker: b, presence: p, auth: a}
}

func (e *testEnv) do(t *testing.T, method, url string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) subscribe(sessionID string, kind types.TopicKind) *recorder {
	r := &recorder{id: string(kind) + "-listener"}
	e.broker.Subscribe(r, sessionID, kind)
	return r
}

func TestCreateAndGetSession(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/sessions", types.CreateSessionRequest{SessionName: "demo"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[types.SessionResponse](t, w)
	assert.Len(t, created.PublicID, 36)
	assert.Equal(t, "demo", created.SessionName)

	s, err := env.registry.Get(created.PublicID)
	require.NoError(t, err)
	content := "x"
	require.NoError(t, s.Tree.Create("src", types.NodeTypeFolder, nil))
	require.NoError(t, s.Tree.Create("src/a.js", types.NodeTypeFile, &content))

	w = env.do(t, http.MethodGet, "/api/sessions/"+created.PublicID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	legacy := decodeBody[types.LegacySessionResponse](t, w)
	assert.Equal(t, "demo", legacy.SessionName)
	require.Len(t, legacy.Files, 2)
	assert.Equal(t, "src/", legacy.Files[0].Name)
	assert.True(t, legacy.Files[0].Folder)
	assert.Equal(t, "src/a.js", legacy.Files[1].Name)

	w = env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]types.SessionResponse](t, w), 1)
}

func TestCreateSessionWithoutBodyGeneratesName(t *testing.T) {
	env := setupRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decodeBody[types.SessionResponse](t, w).Name)
}

func TestUnknownSessionIs404(t *testing.T) {
	env := setupRouter(t)
	for _, url := range []string{
		"/api/sessions/nope",
		"/api/sessions/nope/chat",
		"/api/tree/nope",
		"/api/tree/nope/search?query=x",
	} {
		w := env.do(t, http.MethodGet, url, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, url)
		assert.Contains(t, decodeBody[map[string]string](t, w), "error")
	}
	w := env.do(t, http.MethodDelete, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession(t *testing.T) {
	env := setupRouter(t)
	s := env.registry.Create("demo")
	w := env.do(t, http.MethodDelete, "/api/sessions/"+s.PublicID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err := env.registry.Get(s.PublicID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestParticipantsAndChat(t *testing.T) {
	env := setupRouter(t)
	s := env.registry.Create("demo")
	env.presence.Join(s.PublicID, presence.Participant{ConnectionID: "c1", UserID: "1", Username: "bob"})
	env.presence.Join(s.PublicID, presence.Participant{ConnectionID: "c2", UserID: "2", Username: "alice"})
	s.AppendChat("alice", "hi")

	w := env.do(t, http.MethodGet, "/api/sessions/"+s.PublicID+"/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roster struct {
		Participants []string `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roster))
	assert.Equal(t, []string{"alice", "bob"}, roster.Participants)

	w = env.do(t, http.MethodGet, "/api/sessions/"+s.PublicID+"/chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	chat := decodeBody[[]types.ChatMessage](t, w)
	require.Len(t, chat, 1)
	assert.Equal(t, "hi", chat[0].Content)
}

func TestQRCode(t *testing.T) {
	env := setupRouter(t)
	s := env.registry.Create("demo")
	w := env.do(t, http.MethodGet, "/api/sessions/"+s.PublicID+"/qrcode?size=128x128", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestParseSize(t *testing.T) {
	assert.Equal(t, 200, parseSize("200x200"))
	assert.Equal(t, 64, parseSize(" 64 "))
	assert.Equal(t, 0, parseSize(""))
	assert.Equal(t, 0, parseSize("-5"))
	assert.Equal(t, 0, parseSize("abc"))
}

func TestTreeLifecycle(t *testing.T) {
	env := setupRouter(t)
	s := env.registry.Create("demo")
	base := "/api/tree/" + s.PublicID
	treeEvents := env.subscribe(s.PublicID, types.TopicTree)
	fileEvents := env.subscribe(s.PublicID, types.TopicFile)

	w := env.do(t, http.MethodPost, base, types.CreateNodeRequest{Path: "src", Type: types.NodeTypeFolder})
	require.Equal(t, http.StatusCreated, w.Code)

	content := "// TODO: fix"
	w = env.do(t, http.MethodPost, base, types.CreateNodeRequest{Path: "src/a.js", Type: types.NodeTypeFile, Content: &content})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "a.js", decodeBody[types.TreeNode](t, w).Name)

	w = env.do(t, http.MethodPost, base, types.CreateNodeRequest{Path: "src/a.js", Type: types.NodeTypeFile})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, http.MethodPost, base, types.CreateNodeRequest{Path: "missing/b.js"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	updated := "line1\nline2\n// TODO: fix"
	w = env.do(t, http.MethodPut, base+"/content", types.WriteContentRequest{Path: "src/a.js", Content: &updated})
	require.Equal(t, http.StatusOK, w.Code)
	written := decodeBody[types.FileContentResponse](t, w)

	w = env.do(t, http.MethodGet, base+"/file?path=src/a.js", nil)
	require.Equal(t, http.StatusOK, w.Code)
	file := decodeBody[types.FileContentResponse](t, w)
	assert.Equal(t, updated, file.Content)
	assert.Equal(t, written.Hash, file.Hash)

	w = env.do(t, http.MethodGet, base+"/file?path=src", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, base+"/search?query=TODO", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []types.SearchMatch{{Path: "src/a.js", Line: 3, Content: "// TODO: fix"}}, decodeBody[[]types.SearchMatch](t, w))

	w = env.do(t, http.MethodGet, base+"/search?query=TODO&glob=[", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/rename", types.RenameRequest{Path: "src/a.js", NewName: "b.js"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "src/b.js", decodeBody[types.PathResponse](t, w).NewPath)

	w = env.do(t, http.MethodPost, base+"/duplicate", types.DuplicateRequest{Path: "src/b.js"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "src/b copy.js", decodeBody[types.PathResponse](t, w).NewPath)

	w = env.do(t, http.MethodPost, base+"/move", types.MoveRequest{From: "src/b.js", To: "lib"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lib/b.js", decodeBody[types.PathResponse](t, w).NewPath)

	w = env.do(t, http.MethodPost, base+"/move", types.MoveRequest{From: "src", To: "src"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, base+"?path=src", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeBody[types.TreeResponse](t, w)
	require.Len(t, snap.Tree.Children, 1)
	assert.Equal(t, "lib", snap.Tree.Children[0].Name)

	var kinds []types.TreeEventType
	for _, body := range treeEvents.events {
		var ev types.TreeEvent
		require.NoError(t, json.Unmarshal(body, &ev))
		kinds = append(kinds, ev.Type)
	}
	assert.Equal(t, []types.TreeEventType{
		types.TreeCreated, types.TreeCreated, types.TreeRenamed, types.TreeDuplicated, types.TreeMoved, types.TreeDeleted,
	}, kinds)
	assert.Len(t, fileEvents.events, 1)
}

func TestDownloadAndUpload(t *testing.T) {
	env := setupRouter(t)
	s := env.registry.Create("demo")
	base := "/api/tree/" + s.PublicID
	treeEvents := env.subscribe(s.PublicID, types.TopicTree)

	upload := func(name string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		for k, v := range fields {
			require.NoError(t, mw.WriteField(k, v))
		}
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, base+"/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	w := upload("notes.txt", []byte("hello"), map[string]string{"path": "docs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got, err := s.Tree.ReadContent("docs/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	f, err := zw.Create("pkg/main.go")
	require.NoError(t, err)
	_, err = f.Write([]byte("package main"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	w = upload("bundle.zip", archive.Bytes(), map[string]string{"extract": "true"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got, err = s.Tree.ReadContent("pkg/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", got)
	assert.Len(t, treeEvents.events, 2)

	w = env.do(t, http.MethodGet, base+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "docs/notes.txt")
	assert.Contains(t, names, "pkg/main.go")
}

func TestRegisterLoginMeLogout(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/users/register", types.AuthRequest{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/users/register", types.AuthRequest{Username: "alice", Password: "pw"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, http.MethodPost, "/api/users/register", types.AuthRequest{Username: "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/login", types.AuthRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/users/login", types.AuthRequest{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody[types.AuthResponse](t, w).Token
	require.NotEmpty(t, token)

	w = env.do(t, http.MethodGet, "/api/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, http.MethodGet, "/api/users/me", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decodeBody[map[string]any](t, w)["username"])

	w = env.do(t, http.MethodPost, "/api/users/logout", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/users/me", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
