// Package zabbix checks a Zabbix server deployed by the monitoring plugin,
// through its dashboard and its JSON-RPC API.
package zabbix

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const sessionCookie = "zbx_sessionid"

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("zabbix returned %d for %s", e.Code, e.URL)
}

// Web is a dashboard session.
type Web struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      logr.Logger
}

// NewWeb returns a dashboard client for baseURL, e.g. http://10.109.1.2/zabbix.
func NewWeb(baseURL, username, password string) *Web {
	jar, _ := cookiejar.New(nil)
	return &Web{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Jar: jar, Timeout: time.Minute},
		log:      logf.Log.WithName("zabbix"),
	}
}

func (w *Web) get(ctx context.Context, page string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/"+page, nil)
	if err != nil {
		return nil, err
	}
	return w.send(req)
}

func (w *Web) send(req *http.Request) (io.ReadCloser, error) {
	resp, err := w.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "zabbix %s", req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
	}
	return resp.Body, nil
}

// Login signs in through the dashboard form. A session cookie proves success.
func (w *Web) Login(ctx context.Context) error {
	form := url.Values{
		"name":      {w.username},
		"password":  {w.password},
		"autologin": {"1"},
		"enter":     {"Sign in"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/index.php", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := w.send(req)
	if err != nil {
		return err
	}
	defer body.Close()
	_, _ = io.Copy(ioutil.Discard, body)

	u, _ := url.Parse(w.baseURL)
	for _, c := range w.http.Jar.Cookies(u) {
		if c.Name == sessionCookie && c.Value != "" {
			w.log.Info("Logged in to zabbix dashboard", "user", w.username)
			return nil
		}
	}
	return errors.Errorf("zabbix login as %s failed: no %s cookie", w.username, sessionCookie)
}

// Trigger is one row of the trigger status page.
type Trigger struct {
	Severity string
	Status   string
	Host     string
	Name     string
	Age      string
}

// Problems returns the triggers in PROBLEM state listed on the status page.
func (w *Web) Problems(ctx context.Context) ([]Trigger, error) {
	body, err := w.get(ctx, "tr_status.php?fullscreen=0&show_triggers=1")
	if err != nil {
		return nil, err
	}
	defer body.Close()
	doc, err := html.Parse(body)
	if err != nil {
		return nil, errors.Wrap(err, "parsing trigger status page")
	}
	table := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "table" && hasClass(n, "tableinfo", "list-table")
	})
	if table == nil {
		return nil, errors.New("no trigger table on the status page")
	}
	var header []string
	var out []Trigger
	for _, row := range findAll(table, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "tr" }) {
		cells := findAll(row, func(n *html.Node) bool {
			return n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th")
		})
		texts := make([]string, 0, len(cells))
		for _, c := range cells {
			texts = append(texts, strings.TrimSpace(text(c)))
		}
		if header == nil {
			header = texts
			continue
		}
		if len(texts) == 1 {
			// "No triggers found" placeholder row
			continue
		}
		t := Trigger{}
		for i, h := range header {
			if i >= len(texts) {
				break
			}
			switch strings.ToLower(h) {
			case "severity":
				t.Severity = texts[i]
			case "status":
				t.Status = texts[i]
			case "host":
				t.Host = texts[i]
			case "name", "trigger", "problem":
				t.Name = texts[i]
			case "age":
				t.Age = texts[i]
			}
		}
		if strings.EqualFold(t.Status, "PROBLEM") {
			out = append(out, t)
		}
	}
	return out, nil
}

// Screens lists the screen names offered by the screens page.
func (w *Web) Screens(ctx context.Context) ([]string, error) {
	body, err := w.get(ctx, "screens.php")
	if err != nil {
		return nil, err
	}
	defer body.Close()
	doc, err := html.Parse(body)
	if err != nil {
		return nil, errors.Wrap(err, "parsing screens page")
	}
	sel := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "select" && attr(n, "name") == "elementid"
	})
	if sel == nil {
		return nil, nil
	}
	var out []string
	for _, opt := range findAll(sel, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "option" }) {
		out = append(out, strings.TrimSpace(text(opt)))
	}
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, classes ...string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			out = append(out, c)
			continue
		}
		out = append(out, findAll(c, match)...)
	}
	return out
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(text(c))
	}
	return b.String()
}
