package extract

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"anistream/internal/httputil"
	"anistream/internal/media"
)

var passMD5 = regexp.MustCompile(`/pass_md5/[^'"]*`)

const doodTokenChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// resolveDood reads the /pass_md5/ path from the player page; that endpoint
// returns a URL prefix which becomes playable with a random suffix and the
// path's last segment as token.
func resolveDood(ctx context.Context, e *Engine, embedURL, referer string) (Embedded, error) {
	embedURL = strings.Replace(embedURL, "/d/", "/e/", 1)

	headers := map[string]string{}
	if referer != "" {
		headers["Referer"] = referer
	}
	resp, err := e.client.Get(ctx, embedURL, headers)
	if err != nil {
		return Embedded{}, fmt.Errorf("fetching doodstream embed: %w", err)
	}

	media.ReportStage(ctx, media.StageExtracting)
	path := passMD5.FindString(resp.String())
	if path == "" {
		return Embedded{}, fmt.Errorf("doodstream pass_md5: %w", media.ErrPatternNotFound)
	}

	origin := httputil.Origin(resp.URL)
	prefix, err := e.client.GetString(ctx, origin+path, map[string]string{"Referer": resp.URL})
	if err != nil {
		return Embedded{}, fmt.Errorf("fetching doodstream pass_md5: %w", err)
	}
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "http") {
		return Embedded{}, fmt.Errorf("doodstream returned %q: %w", prefix, media.ErrPatternNotFound)
	}

	token := path[strings.LastIndex(path, "/")+1:]
	var suffix strings.Builder
	for range 10 {
		suffix.WriteByte(doodTokenChars[rand.IntN(len(doodTokenChars))])
	}
	url := prefix + suffix.String() + "?token=" + token + "&expiry=" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	return Embedded{
		URL:     url,
		Kind:    media.KindFile,
		Headers: map[string]string{"Referer": origin + "/"},
	}, nil
}
