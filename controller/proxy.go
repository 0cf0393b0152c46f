package controller

import (
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/relay/grok"
)

// proxyFetch streams an upstream asset through to the client, passing the
// upstream content type and status along.
func proxyFetch(c *gin.Context, credential *model.Credential, rawURL string) {
	resp, err := grokClient.FetchAsset(c.Request.Context(), credential, rawURL)
	if err != nil {
		respondError(c, err)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Status(resp.StatusCode)
	c.Header("Content-Type", contentType)
	if length := resp.Header.Get("Content-Length"); length != "" {
		c.Header("Content-Length", length)
	}
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		logger.Logger.Debug("asset proxy copy interrupted", zap.Error(err))
	}
}

// ProxyVideo serves GET /proxy/video: an authenticated fetch-through for
// generated videos, pinned to the credential that produced them.
func ProxyVideo(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" || !grok.AllowedProxyTarget(rawURL) {
		respondBadRequest(c, "url must point at a known upstream host")
		return
	}
	credentialId := strings.TrimSpace(c.Query("credential"))
	if credentialId == "" {
		respondBadRequest(c, "credential is required")
		return
	}
	credential, err := credentialPool.GetById(credentialId)
	if err != nil {
		respondError(c, err)
		return
	}
	if credential == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "credential not found", "type": "invalid_request_error"}})
		return
	}
	proxyFetch(c, credential, rawURL)
}

// ProxyAssets serves GET /proxy/assets: an anonymous fetch-through for
// generated images and thumbnails.
func ProxyAssets(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" || !grok.AllowedProxyTarget(rawURL) {
		respondBadRequest(c, "url must point at a known upstream host")
		return
	}
	proxyFetch(c, nil, rawURL)
}
