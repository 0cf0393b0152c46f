package grok

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPostId(t *testing.T) {
	id, ok := ExtractPostId("https://assets.grok.com/users/u-1/generated/post-abc/image.jpg")
	require.True(t, ok)
	require.Equal(t, "post-abc", id)

	// UUID fallback when the path layout differs.
	id, ok = ExtractPostId("https://assets.grok.com/x/123e4567-e89b-12d3-a456-426614174000.jpg")
	require.True(t, ok)
	require.Equal(t, "123e4567-e89b-12d3-a456-426614174000", id)

	_, ok = ExtractPostId("https://assets.grok.com/plain/image.jpg")
	require.False(t, ok)
}

func TestAllowedProxyTarget(t *testing.T) {
	require.True(t, AllowedProxyTarget("https://assets.grok.com/users/x/image.jpg"))
	require.True(t, AllowedProxyTarget("https://grok.com/rest/whatever"))
	require.True(t, AllowedProxyTarget("https://cdn.assets.grok.com/x"))

	require.False(t, AllowedProxyTarget("https://evil.example/image.jpg"))
	require.False(t, AllowedProxyTarget("https://notgrok.com/x"))
	require.False(t, AllowedProxyTarget("ftp://assets.grok.com/x"))
	require.False(t, AllowedProxyTarget("::not a url::"))
}

func TestAbsoluteAssetURL(t *testing.T) {
	require.Equal(t, "https://x.example/a.jpg", AbsoluteAssetURL("https://x.example/a.jpg"))
	require.Equal(t, "https://assets.grok.com/users/a.jpg", AbsoluteAssetURL("/users/a.jpg"))
	require.Equal(t, "https://assets.grok.com/users/a.jpg", AbsoluteAssetURL("users/a.jpg"))
	require.Equal(t, "", AbsoluteAssetURL(""))
}

func TestProxyURLs(t *testing.T) {
	videoURL := ProxyVideoURL("https://assets.grok.com/v.mp4", "cred-1")
	require.Contains(t, videoURL, "/proxy/video?")
	require.Contains(t, videoURL, "credential=cred-1")

	assetURL := ProxyAssetURL("/thumb.jpg")
	require.Contains(t, assetURL, "/proxy/assets?")
	require.Contains(t, assetURL, "url=https%3A%2F%2Fassets.grok.com%2Fthumb.jpg")
}
