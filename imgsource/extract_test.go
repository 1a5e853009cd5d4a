package imgsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParamExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "html attribute",
			body: `<a href="/images/search?img_url=https%3A%2F%2Fexample.com%2Fa.jpg&amp;pos=0&amp;rpt=simage">x</a>`,
			want: []string{"https://example.com/a.jpg"},
		},
		{
			name: "json blob",
			body: `{"href":"/images/search?img_url=http%3A%2F%2Fcdn.example.org%2Fpic%3Fid%3D1&quot;,"x":1}`,
			want: []string{"http://cdn.example.org/pic?id=1"},
		},
		{
			name: "double encoded artifact",
			body: `img_url=https%3A%2F%2Fexample.com%2Fb.png%26amp%3B`,
			want: []string{"https://example.com/b.png"},
		},
		{
			name: "repeats and junk are dropped",
			body: `img_url=https%3A%2F%2Fexample.com%2Fa.jpg img_url=ftp%3A%2F%2Fexample.com%2Fc.jpg ` +
				`img_url=%ZZ img_url=https%3A%2F%2Fexample.com%2Fa.jpg img_url=https%3A%2F%2Fexample.com%2Fd.gif`,
			want: []string{"https://example.com/a.jpg", "https://example.com/d.gif"},
		},
		{
			name: "nothing",
			body: `<html><body>captcha</body></html>`,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, QueryParamExtractor([]byte(tt.body)))
		})
	}
}

func TestOriginFragmentExtractor(t *testing.T) {
	t.Parallel()

	body := `data-bem='{"serp-item":{"preview":[{"w":800,"h":600,"origin":{"w":800,"h":600,"url":"https:\/\/example.com\/hata.jpg"}}]}}'` +
		` {"w":10,"h":20,"origin":{"url":"http://example.org/ng.png"}}`

	assert.Equal(t, []string{"https://example.com/hata.jpg", "http://example.org/ng.png"}, OriginFragmentExtractor([]byte(body)))
}

func TestDocumentExtractor(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<div class="serp-item"><a href="/images/search?pos=0&amp;img_url=https%3A%2F%2Fexample.com%2F1.jpg&amp;text=x">1</a></div>
<div class="serp-item"><a href="/images/search?pos=1&amp;img_url=https%3A%2F%2Fexample.com%2F2.jpg">2</a></div>
<a href="/images/search?text=no-image">more</a>
<a href="https://other.example.com/?img_url=javascript%3Aalert(1)">bad</a>
</body></html>`

	assert.Equal(t, []string{"https://example.com/1.jpg", "https://example.com/2.jpg"}, DocumentExtractor([]byte(body)))
}

func TestExtractorByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", ExtractorQuery, ExtractorOrigin, ExtractorDocument} {
		extract, err := ExtractorByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, extract, name)
	}

	_, err := ExtractorByName("xpath")
	require.Error(t, err)
}
