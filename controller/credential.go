package controller

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/relay/pool"
)

// credentialView is the admin listing row. Tokens are truncated so the
// listing never leaks a usable credential.
type credentialView struct {
	Id          string `json:"id"`
	Name        string `json:"name,omitempty"`
	TokenHint   string `json:"token_hint"`
	UserId      string `json:"user_id,omitempty"`
	Status      int    `json:"status"`
	NsfwEnabled bool   `json:"nsfw_enabled"`
	UseCount    int64  `json:"use_count"`
	CreatedTime int64  `json:"created_time"`
	LastUsedAt  int64  `json:"last_used_at,omitempty"`
}

func tokenHint(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "****"
}

func toView(credential *model.Credential) credentialView {
	return credentialView{
		Id:          credential.Id,
		Name:        credential.Name,
		TokenHint:   tokenHint(credential.SSOToken),
		UserId:      credential.UserId,
		Status:      credential.Status,
		NsfwEnabled: credential.NsfwEnabled,
		UseCount:    credential.UseCount,
		CreatedTime: credential.CreatedTime,
		LastUsedAt:  credential.LastUsedAt,
	}
}

func respondAdminError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "message": err.Error()})
}

// ListCredentials serves GET /api/credential.
func ListCredentials(c *gin.Context) {
	credentials, err := credentialPool.ListAll()
	if err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	views := make([]credentialView, 0, len(credentials))
	for _, credential := range credentials {
		views = append(views, toView(credential))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": views})
}

// ImportCredentials serves POST /api/credential/import. The body is the raw
// import text: a JSON array or newline-delimited tokens.
func ImportCredentials(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<20))
	if err != nil {
		respondAdminError(c, http.StatusBadRequest, err)
		return
	}
	entries := pool.ParseBulkText(string(body))
	if len(entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "no credentials found in import text"})
		return
	}
	applied, err := credentialPool.BulkUpsert(entries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
			"applied": applied,
			"parsed":  len(entries),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": applied, "parsed": len(entries)})
}

// DeleteCredential serves DELETE /api/credential/:id.
func DeleteCredential(c *gin.Context) {
	existed, err := credentialPool.Delete(c.Param("id"))
	if err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	if !existed {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "credential not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ClearCredentials serves DELETE /api/credential.
func ClearCredentials(c *gin.Context) {
	if err := credentialPool.ClearAll(); err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type credentialToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetCredentialNsfw serves POST /api/credential/:id/nsfw.
func SetCredentialNsfw(c *gin.Context) {
	var req credentialToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAdminError(c, http.StatusBadRequest, err)
		return
	}
	if err := credentialPool.SetNsfw(c.Param("id"), req.Enabled); err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetCredentialStatus serves POST /api/credential/:id/status.
func SetCredentialStatus(c *gin.Context) {
	var req credentialToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondAdminError(c, http.StatusBadRequest, err)
		return
	}
	status := model.CredentialStatusDisabled
	if req.Enabled {
		status = model.CredentialStatusEnabled
	}
	if err := credentialPool.SetStatus(c.Param("id"), status); err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CredentialStats serves GET /api/credential/stats.
func CredentialStats(c *gin.Context) {
	stats, err := credentialPool.Stats()
	if err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}
