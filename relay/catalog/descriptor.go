// Package catalog resolves outward model identifiers onto the fixed upstream
// model descriptors, merging a builtin registry with a TTL-cached remote
// catalog listing.
package catalog

import (
	"strings"
)

type ModelKind string

const (
	KindText  ModelKind = "text"
	KindImage ModelKind = "image"
	KindVideo ModelKind = "video"
)

// Descriptor maps one outward model id onto the upstream model name and mode
// the product's private API expects.
type Descriptor struct {
	Id           string    `json:"id"`
	UpstreamName string    `json:"upstream_name"`
	UpstreamMode string    `json:"upstream_mode,omitempty"`
	DisplayName  string    `json:"display_name"`
	Kind         ModelKind `json:"kind"`
	// AspectRatio applies to image and video descriptors only.
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

const (
	modeAuto     = "MODEL_MODE_AUTO"
	modeFast     = "MODEL_MODE_FAST"
	modeExpert   = "MODEL_MODE_EXPERT"
	modeThinking = "MODEL_MODE_THINKING"
	modeHeavy    = "MODEL_MODE_HEAVY"
)

// aspectRatios is the fixed set of ratios the imagine pipeline accepts, keyed
// by the underscore form used in model id suffixes.
var aspectRatios = map[string]string{
	"1_1":  "1:1",
	"16_9": "16:9",
	"9_16": "9:16",
	"4_3":  "4:3",
	"3_4":  "3:4",
	"2_3":  "2:3",
}

const (
	defaultImageRatio = "1:1"
	defaultVideoRatio = "16:9"
)

// builtinDescriptors is the fixed model registry. Order is presentation order
// for catalog listings.
var builtinDescriptors = []Descriptor{
	{Id: "grok-4-1", UpstreamName: "grok-4-1", UpstreamMode: modeAuto, DisplayName: "Grok 4.1", Kind: KindText},
	{Id: "grok-4-1-thinking", UpstreamName: "grok-4-1-thinking", UpstreamMode: modeThinking, DisplayName: "Grok 4.1 Thinking", Kind: KindText},
	{Id: "grok-4-1-expert", UpstreamName: "grok-4-1-expert", UpstreamMode: modeExpert, DisplayName: "Grok 4.1 Expert", Kind: KindText},
	{Id: "grok-4-1-fast", UpstreamName: "grok-4-1", UpstreamMode: modeFast, DisplayName: "Grok 4.1 Fast", Kind: KindText},
	{Id: "grok-4", UpstreamName: "grok-4", UpstreamMode: modeAuto, DisplayName: "Grok 4", Kind: KindText},
	{Id: "grok-4-fast", UpstreamName: "grok-4", UpstreamMode: modeFast, DisplayName: "Grok 4 Fast", Kind: KindText},
	{Id: "grok-4-heavy", UpstreamName: "grok-4-heavy", UpstreamMode: modeHeavy, DisplayName: "Grok 4 Heavy", Kind: KindText},
	{Id: "grok-4-mini-thinking", UpstreamName: "grok-4-mini-thinking-tahoe", UpstreamMode: modeThinking, DisplayName: "Grok 4 Mini Thinking", Kind: KindText},
	{Id: "grok-3", UpstreamName: "grok-3", UpstreamMode: modeAuto, DisplayName: "Grok 3", Kind: KindText},
	{Id: "grok-3-fast", UpstreamName: "grok-3", UpstreamMode: modeFast, DisplayName: "Grok 3 Fast", Kind: KindText},

	{Id: "grok-image", UpstreamName: "grok-image", DisplayName: "Grok Imagine", Kind: KindImage, AspectRatio: defaultImageRatio},
	{Id: "grok-image-1_1", UpstreamName: "grok-image", DisplayName: "Grok Imagine 1:1", Kind: KindImage, AspectRatio: "1:1"},
	{Id: "grok-image-16_9", UpstreamName: "grok-image", DisplayName: "Grok Imagine 16:9", Kind: KindImage, AspectRatio: "16:9"},
	{Id: "grok-image-9_16", UpstreamName: "grok-image", DisplayName: "Grok Imagine 9:16", Kind: KindImage, AspectRatio: "9:16"},
	{Id: "grok-image-4_3", UpstreamName: "grok-image", DisplayName: "Grok Imagine 4:3", Kind: KindImage, AspectRatio: "4:3"},
	{Id: "grok-image-3_4", UpstreamName: "grok-image", DisplayName: "Grok Imagine 3:4", Kind: KindImage, AspectRatio: "3:4"},
	{Id: "grok-image-2_3", UpstreamName: "grok-image", DisplayName: "Grok Imagine 2:3", Kind: KindImage, AspectRatio: "2:3"},

	{Id: "grok-video", UpstreamName: "grok-video", DisplayName: "Grok Video", Kind: KindVideo, AspectRatio: defaultVideoRatio},
	{Id: "grok-video-16_9", UpstreamName: "grok-video", DisplayName: "Grok Video 16:9", Kind: KindVideo, AspectRatio: "16:9"},
	{Id: "grok-video-9_16", UpstreamName: "grok-video", DisplayName: "Grok Video 9:16", Kind: KindVideo, AspectRatio: "9:16"},
	{Id: "grok-video-1_1", UpstreamName: "grok-video", DisplayName: "Grok Video 1:1", Kind: KindVideo, AspectRatio: "1:1"},
	{Id: "grok-video-4_3", UpstreamName: "grok-video", DisplayName: "Grok Video 4:3", Kind: KindVideo, AspectRatio: "4:3"},
	{Id: "grok-video-3_4", UpstreamName: "grok-video", DisplayName: "Grok Video 3:4", Kind: KindVideo, AspectRatio: "3:4"},
	{Id: "grok-video-2_3", UpstreamName: "grok-video", DisplayName: "Grok Video 2:3", Kind: KindVideo, AspectRatio: "2:3"},
}

// aliases maps accepted shorthand ids onto canonical builtin ids.
var aliases = map[string]string{
	"grok":               "grok-4-1",
	"grok-latest":        "grok-4-1",
	"grok-4.1":           "grok-4-1",
	"grok-4.1-thinking":  "grok-4-1-thinking",
	"grok-4.1-expert":    "grok-4-1-expert",
	"grok-4.1-fast":      "grok-4-1-fast",
	"grok-4-mini":        "grok-4-mini-thinking",
	"grok-imagine":       "grok-image",
	"grok-2-image":       "grok-image",
	"grok-imagine-video": "grok-video",
	"grok-video-imagine": "grok-video",
}

var builtinById = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(builtinDescriptors))
	for _, d := range builtinDescriptors {
		m[d.Id] = d
	}
	return m
}()

func normalizeModelId(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Builtin returns the builtin descriptor for id, if any.
func Builtin(id string) (Descriptor, bool) {
	d, ok := builtinById[normalizeModelId(id)]
	return d, ok
}

// Builtins returns the fixed registry in presentation order.
func Builtins() []Descriptor {
	out := make([]Descriptor, len(builtinDescriptors))
	copy(out, builtinDescriptors)
	return out
}

// Canonicalize maps a remote catalog id onto a builtin descriptor. The bool
// is false for remote ids no builtin family covers; those stay listed as
// unusable catalog entries.
func Canonicalize(remoteId string) (Descriptor, bool) {
	id := normalizeModelId(remoteId)
	if d, ok := builtinById[id]; ok {
		return d, true
	}

	switch {
	case strings.HasPrefix(id, "grok-imagine"), strings.HasPrefix(id, "grok-image"):
		return ratioVariant("grok-image", id, defaultImageRatio), true
	case strings.HasPrefix(id, "grok-video"):
		return ratioVariant("grok-video", id, defaultVideoRatio), true
	case strings.HasPrefix(id, "grok-4.1"), strings.HasPrefix(id, "grok-4-1"):
		return keywordVariant(id, []keywordRule{
			{"expert", "grok-4-1-expert"},
			{"thinking", "grok-4-1-thinking"},
			{"fast", "grok-4-1-fast"},
		}, "grok-4-1"), true
	case strings.HasPrefix(id, "grok-4-mini"):
		return builtinById["grok-4-mini-thinking"], true
	case strings.HasPrefix(id, "grok-4"):
		return keywordVariant(id, []keywordRule{
			{"heavy", "grok-4-heavy"},
			{"fast", "grok-4-fast"},
		}, "grok-4"), true
	case strings.HasPrefix(id, "grok-3"):
		return keywordVariant(id, []keywordRule{
			{"fast", "grok-3-fast"},
		}, "grok-3"), true
	}
	return Descriptor{}, false
}

// ratioVariant resolves the trailing aspect-ratio suffix of an image or video
// id, falling back to the family base ratio when the suffix is not one of the
// fixed six.
func ratioVariant(family, id, defaultRatio string) Descriptor {
	for suffix := range aspectRatios {
		if strings.HasSuffix(id, "-"+suffix) || strings.HasSuffix(id, "_"+suffix) {
			if variant, ok := builtinById[family+"-"+suffix]; ok {
				return variant
			}
		}
	}
	base := builtinById[family]
	base.AspectRatio = defaultRatio
	return base
}

// keywordRule pairs an id substring with the builtin it selects. Rules are
// checked in declaration order so ids carrying several keywords always
// canonicalize the same way.
type keywordRule struct {
	keyword   string
	builtinId string
}

func keywordVariant(id string, rules []keywordRule, fallback string) Descriptor {
	for _, rule := range rules {
		if strings.Contains(id, rule.keyword) {
			return builtinById[rule.builtinId]
		}
	}
	return builtinById[fallback]
}
