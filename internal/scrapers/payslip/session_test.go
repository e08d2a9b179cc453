package payslip

import (
	"context"
	"payslip-scraper/internal/components/telemetry"
	"payslip-scraper/internal/scrapers/payslip/paysliptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{Identity: "emp1234", Secret: "pa$$w0rd"}

func newTestSession(t *testing.T, baseUrl string) *Session {
	t.Helper()
	session, err := NewSession(Options{
		Client:          ClientOptions{BaseUrl: baseUrl},
		MinPollInterval: time.Millisecond,
	}, telemetry.Discard{})
	require.NoError(t, err)
	return session
}

func approvedSession(t *testing.T, portal *paysliptest.Portal) *Session {
	t.Helper()
	ctx := context.Background()
	session := newTestSession(t, portal.URL())
	require.NoError(t, session.Login(ctx, testCreds))
	require.NoError(t, session.WaitForApproval(ctx, 5*time.Second, 0))
	return session
}

func TestLogin(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{})
	defer portal.Close()

	session := newTestSession(t, portal.URL())
	err := session.Login(context.Background(), testCreds)
	require.NoError(t, err)

	identity, secret, form := portal.LoginForm()
	require.Equal(t, testCreds.Identity, identity)
	require.Equal(t, testCreds.Secret, secret)
	require.Equal(t, "FIDO", form.Get("loginType"))
	require.Equal(t, "PC", form.Get("deviceType"))

	token, header := session.Token()
	require.Equal(t, "token-1", token)
	require.Equal(t, paysliptest.TokenHeader, header)
}

func TestLoginMissingToken(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{OmitLoginToken: true})
	defer portal.Close()

	session := newTestSession(t, portal.URL())
	err := session.Login(context.Background(), testCreds)
	require.ErrorIs(t, err, ErrMissingToken)

	_, _, form := portal.LoginForm()
	require.Nil(t, form, "credentials must not be submitted without a token")
}

func TestLoginRejected(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{RejectLogin: true})
	defer portal.Close()

	session := newTestSession(t, portal.URL())
	err := session.Login(context.Background(), testCreds)
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Contains(t, err.Error(), "비밀번호가 일치하지")
}

func TestWaitForApproval(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{ApprovalAfter: 2})
	defer portal.Close()
	ctx := context.Background()

	session := newTestSession(t, portal.URL())
	require.NoError(t, session.Login(ctx, testCreds))
	require.NoError(t, session.WaitForApproval(ctx, 5*time.Second, 0))

	token, header := session.Token()
	require.Equal(t, "token-2", token)
	require.Equal(t, paysliptest.TokenHeader, header)
	require.Equal(t, 3, portal.Probes())
}

func TestWaitForApprovalLaterProbe(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{
		TokenEndpoint:   "/loginSuccess.do",
		OmitTokenHeader: true,
	})
	defer portal.Close()
	ctx := context.Background()

	session := newTestSession(t, portal.URL())
	require.NoError(t, session.Login(ctx, testCreds))
	require.NoError(t, session.WaitForApproval(ctx, 5*time.Second, 0))

	token, header := session.Token()
	require.Equal(t, "token-2", token)
	require.Equal(t, DefaultTokenHeader, header)
}

func TestWaitForApprovalTimeout(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{ApprovalAfter: -1})
	defer portal.Close()
	ctx := context.Background()

	session := newTestSession(t, portal.URL())
	require.NoError(t, session.Login(ctx, testCreds))

	err := session.WaitForApproval(ctx, 30*time.Millisecond, 0)
	require.ErrorIs(t, err, ErrApprovalTimeout)
	require.Contains(t, err.Error(), "/pay/payslipInit.do -> 200")
	require.Contains(t, err.Error(), "/loginSuccess.do -> 200")
	require.Greater(t, portal.Probes(), 3)
}

func TestWaitForApprovalSwallowsProbeErrors(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{})
	url := portal.URL()
	portal.Close()

	session := newTestSession(t, url)
	err := session.WaitForApproval(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrApprovalTimeout)
	require.Contains(t, err.Error(), "/noticePopup.do -> error:")
}

func TestWaitForApprovalCancelled(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{ApprovalAfter: -1})
	defer portal.Close()

	session := newTestSession(t, portal.URL())
	require.NoError(t, session.Login(context.Background(), testCreds))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := session.WaitForApproval(ctx, time.Minute, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

var marchRecords = []map[string]any{
	{"payDt": "20240325", "payItemNm": "기본급", "payAmt": "3,000,000", "dedAmt": "300,000", "realAmt": "2,700,000"},
	{"payDt": "20240325", "payItemNm": "식대", "payAmt": 200000, "realAmt": 200000},
}

func TestFetchPeriod(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{
		Records: map[paysliptest.Period][]map[string]any{
			{Year: 2024, Month: 3}: marchRecords,
		},
	})
	defer portal.Close()

	session := approvedSession(t, portal)
	txs, err := session.FetchPeriod(context.Background(), "E001", 2024, 3)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, "기본급", txs[0].Category)
	require.Equal(t, int64(2700000), txs[0].Net)
	require.Equal(t, int64(200000), txs[1].Gross)
	require.Equal(t, "2024-03-25", txs[1].Date)

	requests := portal.DetailRequests()
	require.Len(t, requests, 1)
	require.Equal(t, "E001", requests[0].Get("empNo"))
	require.Equal(t, "2024", requests[0].Get("payYy"))
	require.Equal(t, "03", requests[0].Get("payMm"))
	require.Equal(t, "PAY", requests[0].Get("scopeCd"))
}

func TestFetchPeriodEmpty(t *testing.T) {
	portal := paysliptest.NewPortal(paysliptest.Config{})
	defer portal.Close()

	session := approvedSession(t, portal)
	txs, err := session.FetchPeriod(context.Background(), "E001", 2024, 4)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestFetchPeriodRecoversFromStaleSession(t *testing.T) {
	period := paysliptest.Period{Year: 2024, Month: 3}
	portal := paysliptest.NewPortal(paysliptest.Config{
		Stale:   map[paysliptest.Period]int{period: 1},
		Records: map[paysliptest.Period][]map[string]any{period: marchRecords},
	})
	defer portal.Close()

	session := approvedSession(t, portal)
	before, _ := session.Token()

	txs, err := session.FetchPeriod(context.Background(), "E001", 2024, 3)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Len(t, portal.DetailRequests(), 2)

	after, _ := session.Token()
	require.NotEqual(t, before, after)
}

func TestFetchPeriodStaleTwice(t *testing.T) {
	period := paysliptest.Period{Year: 2024, Month: 3}
	portal := paysliptest.NewPortal(paysliptest.Config{
		Stale:   map[paysliptest.Period]int{period: 2},
		Records: map[paysliptest.Period][]map[string]any{period: marchRecords},
	})
	defer portal.Close()

	session := approvedSession(t, portal)
	txs, err := session.FetchPeriod(context.Background(), "E001", 2024, 3)
	require.ErrorIs(t, err, ErrStaleSession)
	require.Nil(t, txs)
	require.Len(t, portal.DetailRequests(), 2)
}
