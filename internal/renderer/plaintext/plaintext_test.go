package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/omnipreview/internal/renderer"
)

func TestRender_Escapes(t *testing.T) {
	r := New("", renderer.NewMatcher(DefaultLanguages, DefaultExtensions))

	out, err := r.Render(context.Background(), "a < b && c", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, `<pre class="plaintext">a &lt; b &amp;&amp; c</pre>`, out)
}

func TestIsEnabled(t *testing.T) {
	r := New("", renderer.NewMatcher(DefaultLanguages, DefaultExtensions))

	ok, err := r.IsEnabled("build.log", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsEnabled("", "Plain")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsEnabled("a.md", "markdown")
	require.NoError(t, err)
	assert.False(t, ok)
}
