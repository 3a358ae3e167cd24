package controllers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/broker"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/tree"
	"github.com/moyoez/codesync-go/types"
)

type TreeController struct {
	registry    *session.Registry
	broker      *broker.Broker
	searchLimit int
	maxUpload   int64
}

func NewTreeController(registry *session.Registry, b *broker.Broker, cfg types.SessionConfig) *TreeController {
	return &TreeController{
		registry:    registry,
		broker:      b,
		searchLimit: cfg.SearchLimit,
		maxUpload:   cfg.MaxUploadBytes,
	}
}

func (ctrl *TreeController) session(c *gin.Context) (*session.Session, bool) {
	s, err := ctrl.registry.Get(c.Param("id"))
	if err != nil {
		tool.AbortWithError(c, err)
		return nil, false
	}
	return s, true
}

// apply runs a tree command and broadcasts what it produced.
func (ctrl *TreeController) apply(c *gin.Context, s *session.Session, cmd types.TreeCommand) (session.TreeResult, bool) {
	res, err := s.ApplyTree(cmd)
	if err != nil {
		tool.DefaultLogger.Debugf("[Tree] %s %s in %s: %v", cmd.Op, cmd.Path, s.PublicID, err)
		tool.AbortWithError(c, err)
		return res, false
	}
	for _, ev := range res.Events {
		ctrl.broker.Publish(s.PublicID, ev)
	}
	return res, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (ctrl *TreeController) HandleGet(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.TreeResponse{PublicID: s.PublicID, Tree: s.Tree.Snapshot()})
}

func (ctrl *TreeController) HandleCreate(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	var req types.CreateNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Type != "" && req.Type != types.NodeTypeFile && req.Type != types.NodeTypeFolder {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("type must be file or folder"))
		return
	}
	res, ok := ctrl.apply(c, s, types.TreeCommand{Op: types.TreeOpCreate, NodeType: req.Type, Path: req.Path, Content: req.Content})
	if !ok {
		return
	}
	node, err := s.Tree.Read(res.NewPath)
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// HandleWriteContent replaces a file's content. No event is published.
func (ctrl *TreeController) HandleWriteContent(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	var req types.WriteContentRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Content == nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required field: content"))
		return
	}
	res, ok := ctrl.apply(c, s, types.TreeCommand{Op: types.TreeOpWrite, Path: req.Path, Content: req.Content})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.FileContentResponse{Path: res.NewPath, Content: *req.Content, Hash: tool.ContentHash(*req.Content)})
}

func (ctrl *TreeController) HandleReadFile(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	p := c.Query("path")
	content, err := s.Tree.ReadContent(p)
	if err != nil {
		tool.AbortWithError(c, err)
		return
	}
	clean, _ := tree.Clean(p)
	c.JSON(http.StatusOK, types.FileContentResponse{Path: clean, Content: content, Hash: tool.ContentHash(content)})
}

func (ctrl *TreeController) HandleRename(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	var req types.RenameRequest
	if !bindJSON(c, &req) {
		return
	}
	res, ok := ctrl.apply(c, s, types.TreeCommand{Op: types.TreeOpRename, Path: req.Path, NewName: req.NewName})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.PathResponse{NewPath: res.NewPath})
}

func (ctrl *TreeController) HandleMove(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	var req types.MoveRequest
	if !bindJSON(c, &req) {
		return
	}
	res, ok := ctrl.apply(c, s, types.TreeCommand{Op: types.TreeOpMove, Path: req.From, To: req.To})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.PathResponse{NewPath: res.NewPath})
}

func (ctrl *TreeController) HandleDuplicate(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	var req types.DuplicateRequest
	if !bindJSON(c, &req) {
		return
	}
	res, ok := ctrl.apply(c, s, types.TreeCommand{Op: types.TreeOpDuplicate, Path: req.Path, NewName: req.TargetName})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.PathResponse{NewPath: res.NewPath})
}

func (ctrl *TreeController) HandleDelete(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	if _, ok := ctrl.apply(c, s, types.TreeCommand{Op: types.TreeOpDelete, Path: c.Query("path")}); !ok {
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSearch greps file contents. limit is capped at the configured search limit.
func (ctrl *TreeController) HandleSearch(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	glob := c.Query("glob")
	if !tree.ValidGlob(glob) {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid glob pattern: "+glob))
		return
	}
	limit := ctrl.searchLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid limit: "+v))
			return
		}
		if limit <= 0 || n < limit {
			limit = n
		}
	}
	matches := slices.Collect(s.Tree.Search(tree.Query{Text: c.Query("query"), Glob: glob, Limit: limit}))
	if matches == nil {
		matches = []types.SearchMatch{}
	}
	c.JSON(http.StatusOK, matches)
}

// HandleDownload streams the whole tree as a zip archive.
func (ctrl *TreeController) HandleDownload(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.Tree.WriteZip(&buf); err != nil {
		tool.AbortWithError(c, err)
		return
	}
	name := strings.ReplaceAll(s.Name, `"`, "")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, name))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// HandleUpload stores a multipart "file" under the "path" folder. Zip
// archives are unpacked when extract=true. Clients are told to refetch.
func (ctrl *TreeController) HandleUpload(c *gin.Context) {
	s, ok := ctrl.session(c)
	if !ok {
		return
	}
	if ctrl.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ctrl.maxUpload+1<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing multipart field: file"))
		return
	}
	if ctrl.maxUpload > 0 && fh.Size > ctrl.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, tool.FastReturnError("File too large"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to open upload: "+err.Error()))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read upload: "+err.Error()))
		return
	}

	folder := c.PostForm("path")
	name := path.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	resp := gin.H{}
	if extract, _ := strconv.ParseBool(c.PostForm("extract")); extract && strings.EqualFold(path.Ext(name), ".zip") {
		n, err := s.Tree.ImportZip(folder, data, ctrl.maxUpload)
		if err != nil {
			tool.AbortWithError(c, err)
			return
		}
		resp["imported"] = n
		tool.DefaultLogger.Infof("[Tree] extracted %d entries from %s into %s", n, name, s.PublicID)
	} else {
		p, err := s.Tree.ImportFile(folder, name, data)
		if err != nil {
			tool.AbortWithError(c, err)
			return
		}
		resp["newPath"] = p
		tool.DefaultLogger.Infof("[Tree] uploaded %s into %s", p, s.PublicID)
	}
	ctrl.broker.Publish(s.PublicID, types.TreeEvent{Type: types.TreeRefresh})
	c.JSON(http.StatusCreated, resp)
}
