package render

import (
	"context"
	"net/url"
	"strings"
)

// knownResourceTypes are the CDP resource type names BlockingInterceptor accepts.
var knownResourceTypes = map[string]struct{}{
	"Image":      {},
	"Stylesheet": {},
	"Font":       {},
	"Media":      {},
	"Script":     {},
	"XHR":        {},
	"Fetch":      {},
	"WebSocket":  {},
}

// adDomains is a set of well-known ad and tracking domains to block
// when ad blocking is enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"googletagservices.com":  {},
	"facebook.net":           {},
	"connect.facebook.net":   {},
	"facebook.com":           {},
	"fbcdn.net":              {},
	"adnxs.com":              {},
	"adsrvr.org":             {},
	"amazon-adsystem.com":    {},
	"criteo.com":             {},
	"criteo.net":             {},
	"outbrain.com":           {},
	"taboola.com":            {},
	"moatads.com":            {},
	"pubmatic.com":           {},
	"rubiconproject.com":     {},
	"scorecardresearch.com":  {},
	"quantserve.com":         {},
	"hotjar.com":             {},
	"mixpanel.com":           {},
	"segment.io":             {},
	"segment.com":            {},
	"analytics.twitter.com":  {},
	"ads-twitter.com":        {},
	"static.ads-twitter.com": {},
	"chartbeat.com":          {},
	"chartbeat.net":          {},
	"optimizely.com":         {},
	"zedo.com":               {},
	"media.net":              {},
	"contextweb.com":         {},
	"bidswitch.net":          {},
	"openx.net":              {},
	"casalemedia.com":        {},
	"demdex.net":             {},
	"krxd.net":               {},
	"bluekai.com":            {},
	"exelator.com":           {},
	"turn.com":               {},
	"mathtag.com":            {},
	"serving-sys.com":        {},
	"eyeota.net":             {},
	"agkn.com":               {},
	"rlcdn.com":              {},
	"sharethis.com":          {},
	"addthis.com":            {},
	"consensu.org":           {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	// Check exact match first.
	if _, ok := adDomains[host]; ok {
		return true
	}
	// Check parent domains (e.g., "pagead2.googlesyndication.com" → "googlesyndication.com").
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// BlockingInterceptor aborts requests whose resource type is in blockedTypes
// (CDP names such as "Image" or "Font"; unknown names are ignored) and, when
// blockAds is set, requests to known ad and tracking domains. Every other
// request is continued.
func BlockingInterceptor(blockedTypes []string, blockAds bool) Interceptor {
	blocked := make(map[string]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if _, ok := knownResourceTypes[name]; ok {
			blocked[name] = struct{}{}
		}
	}

	return InterceptorFunc(func(ctx context.Context, req *InterceptedRequest) error {
		if _, shouldBlock := blocked[req.ResourceType]; shouldBlock {
			return req.Abort(ctx, AbortBlockedByClient)
		}
		if blockAds {
			if u, err := url.Parse(req.URL); err == nil && isAdDomain(u.Hostname()) {
				return req.Abort(ctx, AbortBlockedByClient)
			}
		}
		return req.Continue(ctx)
	})
}
