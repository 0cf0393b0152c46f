package grok

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/fuchsia74/grok2api/common/config"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

// generatedPostPattern matches the post identifier segment of a generated
// asset URL, e.g. .../users/<uid>/generated/<postId>/image.jpg.
var generatedPostPattern = regexp.MustCompile(`/generated/([^/]+)/`)

// uuidPattern is the fallback when the URL layout changes but still embeds a
// UUID-shaped identifier.
var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ExtractPostId pulls the post identifier out of a generated image URL.
func ExtractPostId(imageURL string) (string, bool) {
	if m := generatedPostPattern.FindStringSubmatch(imageURL); len(m) == 2 {
		return m[1], true
	}
	if m := uuidPattern.FindString(imageURL); m != "" {
		return m, true
	}
	return "", false
}

// AbsoluteAssetURL turns a possibly host-relative upstream asset reference
// into an absolute URL.
func AbsoluteAssetURL(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return strings.TrimRight(config.AssetBaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
}

// ProxyVideoURL rewrites an upstream video URL into the gateway's
// authenticated fetch-through endpoint.
func ProxyVideoURL(raw, credentialId string) string {
	q := url.Values{}
	q.Set("url", AbsoluteAssetURL(raw))
	q.Set("credential", credentialId)
	return "/proxy/video?" + q.Encode()
}

// ProxyAssetURL rewrites an upstream asset URL into the gateway's anonymous
// fetch-through endpoint.
func ProxyAssetURL(raw string) string {
	q := url.Values{}
	q.Set("url", AbsoluteAssetURL(raw))
	return "/proxy/assets?" + q.Encode()
}

// AllowedProxyTarget restricts the media proxy to the configured upstream
// hosts, so it cannot be used as an open relay.
func AllowedProxyTarget(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, base := range []string{config.AssetBaseURL, config.GrokBaseURL} {
		if b, err := url.Parse(base); err == nil {
			allowed := strings.ToLower(b.Hostname())
			if host == allowed || strings.HasSuffix(host, "."+allowed) {
				return true
			}
		}
	}
	return false
}

// ImageDisplayURL picks the outward reference for a collected image,
// preferring the upstream URL routed through the asset proxy.
func ImageDisplayURL(img *relaymodel.GeneratedImage) string {
	if img == nil {
		return ""
	}
	if img.URL != "" {
		return ProxyAssetURL(img.URL)
	}
	return ""
}
