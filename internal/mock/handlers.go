package mock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/sirupsen/logrus"
)

// Envelope codes used by the mock besides portal.CodeOK.
const (
	CodeBadRequest    = 40000
	CodeFileNotExists = 40404
	CodeFileExists    = 40900
	CodeInternalError = 50000
	CodeIllegalToken  = 50008
	CodeAuthFail      = 60204
)

const (
	claimsKey     = "claims"
	defaultAvatar = "https://wpimg.wallstcn.com/f778738c-e4f8-4870-b634-56703b4acafe.gif"
)

// Handler contains the HTTP handlers of the mock portal API.
type Handler struct {
	store  *Store
	issuer *Issuer
	logger *logrus.Logger
	now    func() time.Time
}

// NewHandler creates a new mock API handler.
func NewHandler(store *Store, issuer *Issuer, logger *logrus.Logger) *Handler {
	return &Handler{
		store:  store,
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": portal.CodeOK, "data": data})
}

func okMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"code": portal.CodeOK, "message": message})
}

func fail(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// RequireToken authenticates the request from the X-Token header, or the
// "t" or "token" query parameters used by links and the info endpoint.
func (h *Handler) RequireToken(c *gin.Context) {
	token := c.GetHeader(portal.TokenHeader)
	if token == "" {
		token = c.Query("t")
	}
	if token == "" {
		token = c.Query("token")
	}

	claims, err := h.issuer.Verify(token)
	if err != nil {
		fail(c, http.StatusUnauthorized, CodeIllegalToken, "Illegal token.")
		return
	}

	c.Set(claimsKey, claims)
	c.Next()
}

func username(c *gin.Context) string {
	return c.MustGet(claimsKey).(*jwt.RegisteredClaims).Subject
}

func (h *Handler) internalError(c *gin.Context, err error, format string, args ...any) {
	h.logger.WithError(err).Errorf(format, args...)
	fail(c, http.StatusInternalServerError, CodeInternalError, "Something is wrong.")
}

// Login handles POST /user/login with multipart or urlencoded credentials.
func (h *Handler) Login(c *gin.Context) {
	name := c.PostForm("username")
	password := c.PostForm("password")

	if err := h.store.Authenticate(name, password); err != nil {
		h.logger.Warnf("login failed for %q: %v", name, err)
		c.JSON(http.StatusOK, gin.H{"code": CodeAuthFail, "message": "Account and password are incorrect."})
		return
	}

	token, err := h.issuer.Issue(name)
	if err != nil {
		h.internalError(c, err, "issue token for %s", name)
		return
	}

	h.logger.Infof("%s logged in", name)
	ok(c, portal.LoginResult{Token: token})
}

// Info handles GET /user/info.
func (h *Handler) Info(c *gin.Context) {
	name := username(c)
	roles, err := h.store.Roles(name)
	if err != nil {
		fail(c, http.StatusUnauthorized, CodeIllegalToken, "User not exist.")
		return
	}

	ok(c, portal.UserInfo{
		Name:         name,
		Roles:        roles,
		Avatar:       defaultAvatar,
		Introduction: "mock portal user",
	})
}

// Logout handles POST /user/logout.
func (h *Handler) Logout(c *gin.Context) {
	h.issuer.Revoke(c.MustGet(claimsKey).(*jwt.RegisteredClaims))
	okMessage(c, "See you ~")
}

// List handles GET /storage/list. The optional page and limit parameters
// slice the result; total always counts every file.
func (h *Handler) List(c *gin.Context) {
	name := username(c)
	files, err := h.store.Files(name)
	if err != nil {
		h.internalError(c, err, "get %v's files", name)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		fail(c, http.StatusBadRequest, CodeBadRequest, "limit must be a non-negative integer")
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		fail(c, http.StatusBadRequest, CodeBadRequest, "page must be a positive integer")
		return
	}

	total := len(files)
	if limit > 0 {
		start, end := pageBounds(page, limit, total)
		files = files[start:end]
	}

	ok(c, portal.FileList{Total: total, Items: files})
}

// pageBounds returns the slice bounds of page within total items without
// overflowing for large page or limit values.
func pageBounds(page, limit, total int) (start, end int) {
	if page-1 > total/limit {
		return total, total
	}
	start = min((page-1)*limit, total)
	end = start + min(limit, total-start)
	return start, end
}

// Upload handles POST /storage/upload.
func (h *Handler) Upload(c *gin.Context) {
	name := username(c)

	header, err := c.FormFile(portal.UploadField)
	if err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "Form key must be 'file'")
		return
	}

	file, err := header.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "Cannot open file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.internalError(c, err, "read upload %s", header.Filename)
		return
	}

	sites, err := h.store.Selected(name)
	if err != nil {
		h.internalError(c, err, "get %v's strategy", name)
		return
	}

	entry := portal.FileEntry{
		Filename:     header.Filename,
		Size:         humanSize(header.Size),
		LastModified: portal.Timestamp{Time: h.now().Truncate(time.Second).UTC()},
		Location:     sites,
	}
	if err := h.store.PutFile(name, entry, content); err != nil {
		if errors.Is(err, ErrFileExists) {
			c.JSON(http.StatusOK, gin.H{"code": CodeFileExists, "message": "File already exists"})
			return
		}
		h.internalError(c, err, "add file %v for %v", header.Filename, name)
		return
	}

	h.logger.Infof("%s uploaded %s (%d bytes) to %v", name, header.Filename, header.Size, sites)
	okMessage(c, "Upload file successfully")
}

// Download handles GET /storage/download. The body is the raw file content.
func (h *Handler) Download(c *gin.Context) {
	filename := c.Query("filename")
	entry, content, err := h.store.File(username(c), filename)
	if err != nil {
		fail(c, http.StatusNotFound, CodeFileNotExists, "The given file not exists.")
		return
	}
	if content == nil {
		content = placeholder(entry)
	}

	c.DataFromReader(http.StatusOK, int64(len(content)), "application/octet-stream", bytes.NewReader(content), map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}

// Delete handles DELETE /storage/delete/:filename.
func (h *Handler) Delete(c *gin.Context) {
	name := username(c)
	filename := c.Param("filename")

	if err := h.store.RemoveFile(name, filename); err != nil {
		if errors.Is(err, ErrFileNotExists) {
			fail(c, http.StatusNotFound, CodeFileNotExists, "The given file not exists.")
			return
		}
		h.internalError(c, err, "remove file %v for %v", filename, name)
		return
	}

	h.logger.Infof("%s deleted %s", name, filename)
	okMessage(c, "Delete file successfully")
}

// Sites handles GET /user/site.
func (h *Handler) Sites(c *gin.Context) {
	selected, err := h.store.Selected(username(c))
	if err != nil {
		h.internalError(c, err, "get selected sites")
		return
	}

	items := h.store.Sites()
	ok(c, portal.SiteSelection{Total: len(items), Items: items, Selected: selected})
}

// GetStrategy handles GET /user/strategy.
func (h *Handler) GetStrategy(c *gin.Context) {
	name := username(c)
	doc, err := h.store.Strategy(name)
	if err != nil {
		h.internalError(c, err, "get %v's strategy", name)
		return
	}
	ok(c, doc)
}

// SetStrategy handles POST /user/strategy. The body is the whole document.
func (h *Handler) SetStrategy(c *gin.Context) {
	name := username(c)

	var doc portal.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if err := h.store.SetStrategy(name, doc); err != nil {
		h.internalError(c, err, "set %v's strategy", name)
		return
	}

	okMessage(c, "Set strategy successfully")
}

// ChangePassword handles POST /user/passwd.
func (h *Handler) ChangePassword(c *gin.Context) {
	name := username(c)
	oldPassword := c.PostForm("password")
	newPassword := c.PostForm("new_password")

	if newPassword == "" {
		fail(c, http.StatusBadRequest, CodeBadRequest, "new_password is required")
		return
	}

	if err := h.store.ChangePassword(name, oldPassword, newPassword); err != nil {
		if errors.Is(err, ErrBadPassword) {
			c.JSON(http.StatusOK, gin.H{"code": CodeAuthFail, "message": "Password is incorrect."})
			return
		}
		h.internalError(c, err, "change %v's password", name)
		return
	}

	h.logger.Infof("%s changed password", name)
	okMessage(c, "Password changed")
}
