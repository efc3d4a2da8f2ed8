// Package resolver implements C7: per-platform lookups from a room or
// video URL to a human-readable title plus an ordered list of media URLs.
// Ported from original_source/src/streamfinder/{mod,bilibili,douyu,huya,
// twitch,youtube,baha}.rs. internal/supervisor classifies Result.URLs[0]
// (".m3u8" -> HLS, ".flv" -> FLV, else DASH) to pick the right
// internal/relay driver.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dmlive/internal/perr"
)

// Result is what every platform resolver produces: a display title and one
// or more ordered media URLs (DASH legs come back as [video, audio] or
// [video, audio, secondary-video], matching the original's dash_id/codecid
// branch in streamfinder/bilibili.rs).
type Result struct {
	Title string
	URLs  []string
}

// Resolver looks up a room or video URL. Cookie is only consulted by
// platforms that require session auth (the bilibili video API).
type Resolver interface {
	Resolve(ctx context.Context, url, cookie string) (Result, error)
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0"

// legacyUserAgent matches the literal Chrome/83 string the original hard
// codes for the bilibili video play-info calls only.
const legacyUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/83.0.4103.106 Safari/537.36"

// safariUserAgent matches the original's gen_ua_safari() used by Baha's
// client builder.
const safariUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.4 Safari/605.1.15"

const resolveRetries = 20
const resolveSpacing = 3 * time.Second

// ForURL picks a Resolver by host/path substring, matching
// StreamFinder::run's dispatch order in streamfinder/mod.rs.
func ForURL(url string, eval ScriptEvaluator) (Resolver, error) {
	switch {
	case strings.Contains(url, "live.bilibili.com"):
		return &Bilibili{}, nil
	case strings.Contains(url, "bilibili.com/"):
		return &Bilibili{}, nil
	case strings.Contains(url, "douyu.com"):
		return &Douyu{Eval: eval}, nil
	case strings.Contains(url, "huya.com"):
		return &Huya{}, nil
	case strings.Contains(url, "twitch.tv/"):
		return &Twitch{}, nil
	case strings.Contains(url, "youtube.com/"), strings.Contains(url, "youtu.be/"):
		return &YouTube{}, nil
	case strings.Contains(url, "gamer.com.tw"):
		return &Baha{}, nil
	default:
		return nil, fmt.Errorf("resolver: no platform matches %q", url)
	}
}

// Resolve retries r up to resolveRetries times with resolveSpacing between
// attempts, matching streamfinder/mod.rs's 20x/3s loop, and surfaces
// KindResolverExhausted once the budget is spent.
func Resolve(ctx context.Context, r Resolver, url, cookie string) (Result, error) {
	var last error
	bo := backoff.WithContext(backoff.NewConstantBackOff(resolveSpacing), ctx)

	var result Result
	attempt := 0
	op := func() error {
		attempt++
		res, err := r.Resolve(ctx, url, cookie)
		if err != nil {
			last = err
			if attempt >= resolveRetries {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return Result{}, perr.Wrap(perr.KindResolverExhausted, "resolver.resolve", fmt.Errorf("after %d attempts: %w", attempt, last))
	}
	return result, nil
}

func errNoMatch(what string) error {
	return fmt.Errorf("no match for %s", what)
}

func httpGet(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return httpGetUA(ctx, url, userAgent, headers)
}

func httpGetUA(ctx context.Context, url, ua string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return http.DefaultClient.Do(req)
}

func postForm(ctx context.Context, target string, form url.Values, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return http.DefaultClient.Do(req)
}
