package render

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anistream/internal/media"
)

func TestStatic(t *testing.T) {
	var r Renderer = Static{"https://site.example/ep/1": `<video><source src="https://cdn/1.mp4"></video>`}

	html, err := r.Render(context.Background(), "https://site.example/ep/1")
	require.NoError(t, err)
	assert.Contains(t, html, "1.mp4")

	_, err = r.Render(context.Background(), "https://site.example/ep/2")
	assert.True(t, errors.Is(err, media.ErrNetwork))
}

func TestFunc(t *testing.T) {
	calls := 0
	var r Renderer = Func(func(ctx context.Context, url string) (string, error) {
		calls++
		return "<html>" + url + "</html>", nil
	})

	html, err := r.Render(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "<html>x</html>", html)
	assert.Equal(t, 1, calls)
}

func TestBrowserCloseWithoutLaunch(t *testing.T) {
	b := NewBrowser(BrowserOptions{Headless: true})
	assert.NoError(t, b.Close())
}
