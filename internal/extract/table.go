package extract

import "regexp"

var (
	fileM3U8 = regexp.MustCompile(`(?s)file:\s*["']([^"']+\.m3u8[^"']*)["']`)
	fileAny  = regexp.MustCompile(`(?s)(?:file|src):\s*["']((?:https?:)?//[^"']+\.(?:m3u8|mp4)[^"']*)["']`)
	sourceEl = regexp.MustCompile(`<source[^>]+src=["']([^"']+)["']`)
)

// DefaultTable returns the built-in embed host table.
func DefaultTable() []Entry {
	return []Entry{
		{
			Name:            "megacloud",
			Hosts:           megacloudHosts,
			Resolver:        resolveMegaCloud,
			RefererRequired: true,
		},
		{
			Name:  "streamtape",
			Hosts: []string{"streamtape", "strtape", "stape.", "streamta.pe", "tapecontent", "shavetape"},
			Rules: []Rule{
				{
					Name:    "robotlink-script",
					Pattern: regexp.MustCompile(`'(?:robot|norobot|ideoo)link'\)\.innerHTML\s*=\s*['"]([^'"]+)['"]`),
					Append:  regexp.MustCompile(`'(?:robot|norobot|ideoo)link'\)\.innerHTML\s*=\s*['"][^'"]+['"]\s*\+\s*\(?\s*['"][a-zA-Z0-9]{3}([^'"]+)['"]\s*\)?\.substring\(3\)`),
				},
				{
					Name:    "robotlink-element",
					Pattern: regexp.MustCompile(`id\s*=\s*["']?(?:robot|norobot|ideoo)link["']?[^>]*>\s*/?(/[^<]+)<`),
					Prefix:  "/",
				},
			},
			RefererRequired: true,
		},
		{
			Name:  "mp4upload",
			Hosts: []string{"mp4upload"},
			Rules: []Rule{
				{Name: "player-src", Pattern: regexp.MustCompile(`src:\s*"([^"]+\.mp4[^"]*)"`)},
				{Name: "packed-src", Pattern: regexp.MustCompile(`src\(\s*"([^"]+\.mp4[^"]*)"`), Unpack: true},
			},
			RefererRequired: true,
		},
		{
			Name: "jwplayer-packed",
			Hosts: []string{
				"filemoon", "moonplayer", "kerapoxy", "streamwish", "swish", "wishembed", "awish",
				"vidhide", "filelions", "alions", "dhtpre", "vidhidepro", "embedwish",
			},
			Rules: []Rule{
				{Name: "file-m3u8", Pattern: fileM3U8, Unpack: true},
				{Name: "sources-hls", Pattern: regexp.MustCompile(`"hls\d?"\s*:\s*"([^"]+)"`), Unpack: true},
				{Name: "iframe", Pattern: regexp.MustCompile(`<iframe[^>]+src="([^"]+)"`), Follow: true},
			},
		},
		{
			Name:            "doodstream",
			Hosts:           []string{"dood", "ds2play", "ds2video", "d0o0d", "d000d", "do0od"},
			Resolver:        resolveDood,
			RefererRequired: true,
		},
		{
			Name:  "voe",
			Hosts: []string{"voe.sx", "voeunblock", "voe-unblock", "voeunbl0ck", "launchreliantcleaverriver"},
			Rules: []Rule{
				{Name: "hls", Pattern: regexp.MustCompile(`'hls'\s*:\s*'(https?://[^']+)'`)},
				{Name: "hls-base64", Pattern: regexp.MustCompile(`'hls'\s*:\s*'([A-Za-z0-9+/=]+)'`), Base64: true},
				{Name: "mp4-base64", Pattern: regexp.MustCompile(`'mp4'\s*:\s*'([A-Za-z0-9+/=]+)'`), Base64: true},
				{Name: "redirect", Pattern: regexp.MustCompile(`window\.location\.href\s*=\s*'([^']+)'`), Follow: true},
			},
		},
		{
			Name:            "vidmoly",
			Hosts:           []string{"vidmoly"},
			Rules:           []Rule{{Name: "file-m3u8", Pattern: fileM3U8}},
			RefererRequired: true,
		},
		{
			Name:  "vidoza",
			Hosts: []string{"vidoza", "sendvid"},
			Rules: []Rule{{Name: "source", Pattern: sourceEl}},
		},
		{
			Name:  "vixcloud",
			Hosts: []string{"vixcloud"},
			Rules: []Rule{
				{Name: "download-url", Pattern: regexp.MustCompile(`window\.downloadUrl\s*=\s*'([^']+)'`)},
				{Name: "playlist", Pattern: regexp.MustCompile(`url:\s*'(https?://[^']+/playlist/[^']+)'`)},
			},
			RefererRequired: true,
		},
		{
			Name:            "yourupload",
			Hosts:           []string{"yourupload"},
			Rules:           []Rule{{Name: "file", Pattern: regexp.MustCompile(`file:\s*'([^']+)'`)}},
			RefererRequired: true,
		},
		{
			Name:  "mixdrop",
			Hosts: []string{"mixdrop", "mixdrp", "mdbekjwqa", "mdy48tn97"},
			Rules: []Rule{
				{Name: "wurl", Pattern: regexp.MustCompile(`MDCore\.wurl\s*=\s*"([^"]+)"`), Unpack: true},
			},
			RefererRequired: true,
		},
		{
			Name:            "uqload",
			Hosts:           []string{"uqload"},
			Rules:           []Rule{{Name: "sources", Pattern: regexp.MustCompile(`sources:\s*\[\s*"([^"]+)"`)}},
			RefererRequired: true,
		},
		{
			Name:  "blogger",
			Hosts: []string{"blogger.com", "blogspot"},
			Rules: []Rule{{Name: "play-url", Pattern: regexp.MustCompile(`"play_url"\s*:\s*"([^"]+)"`)}},
		},
		{
			Name:  "anime3rb",
			Hosts: []string{"anime3rb"},
			Rules: []Rule{
				{Name: "video-source", Pattern: regexp.MustCompile(`videoSource:\s*'([^']+)'`)},
				{Name: "player-iframe", Pattern: regexp.MustCompile(`<iframe[^>]+src="([^"]*vid3rb[^"]*)"`)},
			},
		},
		{
			Name:  "vid3rb",
			Hosts: []string{"vid3rb"},
			Rules: []Rule{{Name: "video-src", Pattern: fileAny}, {Name: "source", Pattern: sourceEl}},
		},
		{
			Name:  "anibunker-loader",
			Hosts: []string{"anibunker"},
			Rules: []Rule{
				{Name: "url", Field: "url"},
				{Name: "data-url", Field: "data.url"},
				{Name: "iframe", Pattern: regexp.MustCompile(`<iframe[^>]+src="([^"]+)"`)},
			},
		},
	}
}
