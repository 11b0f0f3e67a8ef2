package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// browserSession lazily launches one headless browser shared by the
// browser_* tools. The page persists across calls so navigate followed by
// get_content operates on the same document.
type browserSession struct {
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// NewBrowserSession creates an unstarted session; the browser launches on
// first use.
func NewBrowserSession() *browserSession {
	return &browserSession{}
}

func (s *browserSession) currentPage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, fmt.Errorf("no page open, navigate first")
	}
	return s.page, nil
}

func (s *browserSession) openPage(url string) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		controlURL, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			return nil, fmt.Errorf("connect browser: %w", err)
		}
		s.browser = browser
		slog.Debug("headless browser launched")
	}

	if s.page == nil {
		page, err := s.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		s.page = page
	}

	if err := s.page.Timeout(30 * time.Second).Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := s.page.Timeout(30 * time.Second).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	return s.page, nil
}

// Close shuts the browser down. Safe to call when never started.
func (s *browserSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
		s.browser = nil
		s.page = nil
	}
}

// BrowserNavigateTool opens a URL in the shared headless browser.
type BrowserNavigateTool struct {
	session *browserSession
}

func NewBrowserNavigateTool(session *browserSession) *BrowserNavigateTool {
	return &BrowserNavigateTool{session: session}
}

func (t *BrowserNavigateTool) Name() string { return "browser_navigate" }
func (t *BrowserNavigateTool) Description() string {
	return "Navigate the browser to a URL and return the page title"
}
func (t *BrowserNavigateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to navigate to",
			},
		},
		"required": []string{"url"},
	}
}

func (t *BrowserNavigateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("url is required")
	}

	page, err := t.session.openPage(url)
	if err != nil {
		return ErrorResult(fmt.Sprintf("navigation failed: %v", err)).WithError(err)
	}

	info, err := page.Info()
	if err != nil {
		return ErrorResult(fmt.Sprintf("page info: %v", err)).WithError(err)
	}
	data := map[string]any{"title": info.Title, "url": info.URL, "success": true}
	return NewResult(formatToolResult(data, []string{url}))
}

// BrowserGetContentTool extracts text or an attribute from a CSS selector.
type BrowserGetContentTool struct {
	session *browserSession
}

func NewBrowserGetContentTool(session *browserSession) *BrowserGetContentTool {
	return &BrowserGetContentTool{session: session}
}

func (t *BrowserGetContentTool) Name() string { return "browser_get_content" }
func (t *BrowserGetContentTool) Description() string {
	return "Get text or an attribute from an element on the current page"
}
func (t *BrowserGetContentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the element (e.g. 'article', '#main')",
			},
			"attribute": map[string]interface{}{
				"type":        "string",
				"description": "Optional attribute to read (e.g. 'href'); text content when omitted",
			},
		},
		"required": []string{"selector"},
	}
}

func (t *BrowserGetContentTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	selector, _ := args["selector"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	attribute, _ := args["attribute"].(string)

	page, err := t.session.currentPage()
	if err != nil {
		return ErrorResult(err.Error())
	}

	el, err := page.Timeout(10 * time.Second).Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("element not found: %s", selector)).WithError(err)
	}

	var content string
	if attribute != "" {
		attr, err := el.Attribute(attribute)
		if err != nil || attr == nil {
			return ErrorResult(fmt.Sprintf("attribute %q not found on %s", attribute, selector))
		}
		content = *attr
	} else {
		content, err = el.Text()
		if err != nil {
			return ErrorResult(fmt.Sprintf("read text: %v", err)).WithError(err)
		}
	}

	data := map[string]any{"selector": selector, "content": content}
	return NewResult(formatToolResult(data, nil))
}

// BrowserSnapshotTool returns a text outline of the current page for the
// model to pick selectors from.
type BrowserSnapshotTool struct {
	session *browserSession
}

func NewBrowserSnapshotTool(session *browserSession) *BrowserSnapshotTool {
	return &BrowserSnapshotTool{session: session}
}

func (t *BrowserSnapshotTool) Name() string { return "browser_snapshot" }
func (t *BrowserSnapshotTool) Description() string {
	return "Capture a text snapshot of the current page (title, headings, links)"
}
func (t *BrowserSnapshotTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

const snapshotScript = `() => {
	const pick = (sel, attr) => [...document.querySelectorAll(sel)].slice(0, 50)
		.map(e => attr ? {text: e.innerText.trim().slice(0, 120), attr: e.getAttribute(attr)}
		              : {text: e.innerText.trim().slice(0, 120)})
		.filter(e => e.text);
	return {
		title: document.title,
		url: location.href,
		headings: pick("h1, h2, h3"),
		links: pick("a[href]", "href"),
	};
}`

func (t *BrowserSnapshotTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	page, err := t.session.currentPage()
	if err != nil {
		return ErrorResult(err.Error())
	}

	obj, err := page.Timeout(15 * time.Second).Eval(snapshotScript)
	if err != nil {
		return ErrorResult(fmt.Sprintf("snapshot failed: %v", err)).WithError(err)
	}
	return NewResult(formatToolResult(obj.Value.Val(), nil))
}
