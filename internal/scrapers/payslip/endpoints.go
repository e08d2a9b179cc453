package payslip

// Endpoints describes the portal's paths and the location of detail records
// inside the detail response. Empty fields fall back to DefaultEndpoints.
type Endpoints struct {
	LoginPage     string `json:"login_page"`
	LoginSubmit   string `json:"login_submit"`
	PayslipInit   string `json:"payslip_init"`
	NoticePopup   string `json:"notice_popup"`
	LoginSuccess  string `json:"login_success"`
	PayslipDetail string `json:"payslip_detail"`
	// DetailPath is a JMESPath expression selecting the record array.
	DetailPath string `json:"detail_path"`
	ScopeCode  string `json:"scope_code"`
}

var DefaultEndpoints = Endpoints{
	LoginPage:     "/login.do",
	LoginSubmit:   "/loginProc.do",
	PayslipInit:   "/pay/payslipInit.do",
	NoticePopup:   "/common/noticePopup.do",
	LoginSuccess:  "/loginSuccess.do",
	PayslipDetail: "/pay/selectPayslipDetail.do",
	DetailPath:    "data.payDtlList",
	ScopeCode:     "PAY",
}

func (e Endpoints) withDefaults() Endpoints {
	fill := func(value *string, fallback string) {
		if *value == "" {
			*value = fallback
		}
	}
	fill(&e.LoginPage, DefaultEndpoints.LoginPage)
	fill(&e.LoginSubmit, DefaultEndpoints.LoginSubmit)
	fill(&e.PayslipInit, DefaultEndpoints.PayslipInit)
	fill(&e.NoticePopup, DefaultEndpoints.NoticePopup)
	fill(&e.LoginSuccess, DefaultEndpoints.LoginSuccess)
	fill(&e.PayslipDetail, DefaultEndpoints.PayslipDetail)
	fill(&e.DetailPath, DefaultEndpoints.DetailPath)
	fill(&e.ScopeCode, DefaultEndpoints.ScopeCode)
	return e
}

// approvalProbes are checked in order on every approval poll cycle.
func (e Endpoints) approvalProbes() []string {
	return []string{e.PayslipInit, e.NoticePopup, e.LoginSuccess}
}
