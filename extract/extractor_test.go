package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docusaurusPage = `<!DOCTYPE html>
<html>
<head><title>Forward Kinematics | Robotics Book</title></head>
<body>
<nav class="navbar">Home Docs Blog</nav>
<div class="breadcrumbs">Docs / Kinematics</div>
<article>
  <h1>Forward Kinematics</h1>
  <p>Forward kinematics computes end-effector pose from joint angles.</p>
  <h2>Transformation Matrices</h2>
  <p>Each joint contributes a homogeneous transformation matrix.</p>
  <a class="hash-link" href="#transformation-matrices">#</a>
  <script>analytics.track()</script>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractDocusaurusPage(t *testing.T) {
	srv := serve(t, http.StatusOK, docusaurusPage)

	page, err := NewExtractor(5*time.Second).Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Forward Kinematics", page.Title)
	assert.Equal(t, srv.URL, page.URL)
	assert.Contains(t, page.Text, "end-effector pose from joint angles")
	assert.Contains(t, page.Text, "homogeneous transformation matrix")

	// Boilerplate outside and inside the article is gone.
	assert.NotContains(t, page.Text, "Home Docs Blog")
	assert.NotContains(t, page.Text, "Docs / Kinematics")
	assert.NotContains(t, page.Text, "Copyright")
	assert.NotContains(t, page.Text, "analytics.track")

	require.Len(t, page.Headings, 2)
	assert.Equal(t, Heading{Level: 1, Text: "Forward Kinematics"}, page.Headings[0])
	assert.Equal(t, Heading{Level: 2, Text: "Transformation Matrices"}, page.Headings[1])
}

func TestExtractFallsBackToMain(t *testing.T) {
	srv := serve(t, http.StatusOK,
		`<html><head><title>Plain</title></head><body><main><p>Main body text.</p></main></body></html>`)

	page, err := NewExtractor(5*time.Second).Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, page.Text, "Main body text.")
}

func TestExtractNoContentBlock(t *testing.T) {
	srv := serve(t, http.StatusOK,
		`<html><body><div class="sidebar">only chrome here</div></body></html>`)

	_, err := NewExtractor(5*time.Second).Extract(context.Background(), srv.URL)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, srv.URL, parseErr.URL)
}

func TestExtractFetchErrorOnStatus(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "not found")

	_, err := NewExtractor(5*time.Second).Extract(context.Background(), srv.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, srv.URL, fetchErr.URL)
}

func TestExtractFetchErrorOnUnreachable(t *testing.T) {
	srv := serve(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()

	_, err := NewExtractor(time.Second).Extract(context.Background(), url)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestExtractHeadingsBecomeMarkdown(t *testing.T) {
	srv := serve(t, http.StatusOK, docusaurusPage)

	page, err := NewExtractor(5*time.Second).Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	// The converter renders headings as markdown lines, which the chunker
	// relies on for section boundaries.
	assert.Contains(t, page.Text, "# Forward Kinematics")
	assert.Contains(t, page.Text, "## Transformation Matrices")
}
