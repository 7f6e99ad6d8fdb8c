package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const indexFetchTries = 3

// IndexResolver resolves a package's file listing by scraping a remote
// HTML directory index.
type IndexResolver struct {
	client *http.Client
}

// NewIndexResolver creates an IndexResolver using the given HTTP
// client for all fetches.
func NewIndexResolver(client *http.Client) *IndexResolver {
	return &IndexResolver{client: client}
}

// Resolve fetches {index}/{pkg}/ and returns one remote File per
// well-formed anchor in the response. Anchors lacking a link target or
// text content, and anchors with unparseable targets, are skipped with
// a warning.
func (r *IndexResolver) Resolve(ctx context.Context, indexURL *url.URL, pkg string) ([]File, error) {
	target := indexURL.ResolveReference(&url.URL{Path: pkg + "/"})

	// Index authentication is a declared extension point; only
	// IndexAuthNone exists today.
	auth := IndexAuthNone

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		switch auth {
		case IndexAuthNone:
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			closeRespBody(resp)
			return nil, errors.Newf("server error %d for %s", resp.StatusCode, target)
		}
		if resp.StatusCode != http.StatusOK {
			closeRespBody(resp)
			return nil, backoff.Permanent(errors.Newf("status %d for %s", resp.StatusCode, target))
		}
		return resp, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(indexFetchTries))
	if err != nil {
		return nil, errors.Wrap(err, "fetch index for "+pkg)
	}
	defer closeRespBody(resp)

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parse index for "+pkg)
	}

	return extractAnchors(doc, target, pkg, auth), nil
}

// extractAnchors walks the parsed document with an explicit stack and
// converts every well-formed anchor into a remote File. The document
// is discarded afterwards; traversal order does not matter.
func extractAnchors(doc *html.Node, page *url.URL, pkg string, auth IndexAuth) []File {
	var files []File

	stack := []*html.Node{doc}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			stack = append(stack, child)
		}

		if node.Type != html.ElementNode || node.DataAtom != atom.A {
			continue
		}

		href, hasHref := anchorHref(node)
		name := anchorText(node)
		if !hasHref {
			slog.Warn("anchor without link target", "package", pkg, "text", name)
			continue
		}
		if name == "" {
			slog.Warn("anchor without text content", "package", pkg, "href", href)
			continue
		}

		linkURL, err := url.Parse(href)
		if err != nil {
			slog.Warn("malformed link target", "package", pkg, "href", href, "error", err)
			continue
		}

		files = append(files, File{
			Name: name,
			Kind: RemoteFile,
			URL:  page.ResolveReference(linkURL),
			Auth: auth,
		})
	}

	return files
}

func anchorHref(node *html.Node) (string, bool) {
	for _, attr := range node.Attr {
		if attr.Key == "href" {
			return attr.Val, true
		}
	}
	return "", false
}

func anchorText(node *html.Node) string {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.TextNode {
			continue
		}
		if text := strings.TrimSpace(child.Data); text != "" {
			return text
		}
	}
	return ""
}

// closeRespBody closes an HTTP response body.
func closeRespBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}
