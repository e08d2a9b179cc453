// Package paysliptest runs an in-process imitation of the payroll portal for
// tests. It hands out cookies and tokens, requires them back, and can be told
// to reject logins, delay approval or answer periods with stale-session pages.
package paysliptest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

const (
	sessionCookie = "JSESSIONID"
	// TokenHeader is the header name the fake portal declares for its token.
	TokenHeader = "X-PORTAL-CSRF"
)

type Period struct {
	Year  int
	Month int
}

type Config struct {
	// OmitLoginToken serves a login page without a token.
	OmitLoginToken bool
	// RejectLogin answers the credential submit with a failure message.
	RejectLogin bool
	// ApprovalAfter is the number of approval probes answered without a
	// token before the approval goes through. Negative never approves.
	ApprovalAfter int
	// TokenEndpoint is the probe endpoint that hands out the token once
	// approved. Defaults to the payslip init page.
	TokenEndpoint string
	// OmitTokenHeader leaves out the header-name meta tag.
	OmitTokenHeader bool
	// Stale is the number of times a period is answered with an HTML page
	// before real data is returned.
	Stale map[Period]int
	// Records are the raw detail rows returned per period.
	Records map[Period][]map[string]any
}

type Portal struct {
	Server *httptest.Server

	mu        sync.Mutex
	cfg       Config
	sessions  map[string]bool
	loggedIn  bool
	approved  bool
	probes    int
	tokenSeq  int
	token     string
	loginForm url.Values
	details   []url.Values
	stale     map[Period]int
}

func NewPortal(cfg Config) *Portal {
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = "/pay/payslipInit.do"
	}
	stale := map[Period]int{}
	for period, n := range cfg.Stale {
		stale[period] = n
	}

	p := &Portal{
		cfg:      cfg,
		sessions: map[string]bool{},
		stale:    stale,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login.do", p.loginPage)
	mux.HandleFunc("POST /loginProc.do", p.loginSubmit)
	mux.HandleFunc("GET /pay/payslipInit.do", p.probe)
	mux.HandleFunc("GET /common/noticePopup.do", p.probe)
	mux.HandleFunc("GET /loginSuccess.do", p.probe)
	mux.HandleFunc("POST /pay/selectPayslipDetail.do", p.detail)
	p.Server = httptest.NewServer(mux)
	return p
}

func (p *Portal) URL() string {
	return p.Server.URL
}

func (p *Portal) Close() {
	p.Server.Close()
}

// LoginForm returns the decoded credentials of the last login submit.
func (p *Portal) LoginForm() (identity, secret string, form url.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loginForm == nil {
		return "", "", nil
	}
	id, _ := base64.StdEncoding.DecodeString(p.loginForm.Get("userId"))
	pw, _ := base64.StdEncoding.DecodeString(p.loginForm.Get("userPw"))
	return string(id), string(pw), p.loginForm
}

// DetailRequests returns the forms of every detail request received.
func (p *Portal) DetailRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.details...)
}

func (p *Portal) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

func (p *Portal) hasSession(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	return err == nil && p.sessions[cookie.Value]
}

func (p *Portal) nextToken() string {
	p.tokenSeq++
	p.token = "token-" + strconv.Itoa(p.tokenSeq)
	return p.token
}

func (p *Portal) tokenPage(token string) string {
	header := fmt.Sprintf(`<meta name="_csrf_header" content="%s">`, TokenHeader)
	if p.cfg.OmitTokenHeader {
		header = ""
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<meta name="_csrf" content="%s">
%s
<title>portal</title>
</head><body>ok</body></html>`, token, header)
}

const plainPage = `<!DOCTYPE html><html><head><title>portal</title></head><body>please sign in</body></html>`

func writeHtml(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (p *Portal) loginPage(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := "session-" + strconv.Itoa(len(p.sessions)+1)
	p.sessions[id] = true
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/"})

	if p.cfg.OmitLoginToken {
		writeHtml(w, http.StatusOK, plainPage)
		return
	}
	writeHtml(w, http.StatusOK, p.tokenPage(p.nextToken()))
}

func (p *Portal) loginSubmit(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		writeHtml(w, http.StatusBadRequest, plainPage)
		return
	}
	p.loginForm = r.PostForm

	if !p.hasSession(r) || r.PostForm.Get("_csrf") != p.token {
		writeHtml(w, http.StatusForbidden, plainPage)
		return
	}
	if p.cfg.RejectLogin {
		writeHtml(w, http.StatusOK, `<html><body><script>alert('비밀번호가 일치하지 않습니다.');</script></body></html>`)
		return
	}
	p.loggedIn = true
	writeHtml(w, http.StatusOK, `<html><body>휴대폰에서 인증을 완료해 주세요.</body></html>`)
}

func (p *Portal) probe(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loggedIn && !p.approved {
		p.probes++
		if p.cfg.ApprovalAfter >= 0 && p.probes > p.cfg.ApprovalAfter {
			p.approved = true
		}
	}
	if !p.approved || !p.hasSession(r) || r.URL.Path != p.cfg.TokenEndpoint {
		writeHtml(w, http.StatusOK, plainPage)
		return
	}
	writeHtml(w, http.StatusOK, p.tokenPage(p.nextToken()))
}

func (p *Portal) detail(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		writeHtml(w, http.StatusBadRequest, plainPage)
		return
	}
	p.details = append(p.details, r.PostForm)

	year, _ := strconv.Atoi(r.PostForm.Get("payYy"))
	month, _ := strconv.Atoi(r.PostForm.Get("payMm"))
	period := Period{Year: year, Month: month}

	if !p.approved || !p.hasSession(r) {
		writeHtml(w, http.StatusOK, plainPage)
		return
	}
	if p.stale[period] > 0 {
		p.stale[period]--
		writeHtml(w, http.StatusOK, plainPage)
		return
	}
	header := TokenHeader
	if p.cfg.OmitTokenHeader {
		header = "X-CSRF-TOKEN"
	}
	if r.Header.Get(header) != p.token || r.PostForm.Get("_csrf") != p.token {
		writeHtml(w, http.StatusOK, plainPage)
		return
	}

	records := p.cfg.Records[period]
	if records == nil {
		records = []map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"result": "SUCCESS",
		"data":   map[string]any{"payDtlList": records},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_, _ = w.Write(body)
}
