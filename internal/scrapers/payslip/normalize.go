package payslip

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	defaultCategory = "UNKNOWN"
	defaultCurrency = "KRW"
)

// field aliases, in priority order
var (
	dateAliases        = []string{"payDt", "payDate", "pay_date", "date"}
	categoryAliases    = []string{"payItemNm", "itemNm", "category"}
	groupAliases       = []string{"payGrpNm", "groupNm", "group"}
	grossAliases       = []string{"payAmt", "grossAmt", "gross", "totPayAmt"}
	deductionAliases   = []string{"dedAmt", "deductAmt", "deductions", "totDedAmt"}
	netAliases         = []string{"realAmt", "netAmt", "net", "realPayAmt"}
	currencyAliases    = []string{"currCd", "currency"}
	sequenceAliases    = []string{"paySeq", "seq", "id"}
	periodStartAliases = []string{"payStDt", "periodStart", "startDate"}
	periodEndAliases   = []string{"payEdDt", "periodEnd", "endDate"}
)

// Normalize maps the raw records of one period onto Transactions. Missing or
// malformed fields fall back to defaults; it never fails.
func Normalize(year, month int, records []Record) []Transaction {
	out := make([]Transaction, 0, len(records))
	for _, record := range records {
		out = append(out, normalizeRecord(year, month, record))
	}
	return out
}

func normalizeRecord(year, month int, record Record) Transaction {
	date := fmt.Sprintf("%04d-%02d-01", year, month)
	if raw, ok := firstPresent(record, dateAliases); ok {
		date = NormalizeDate(stringify(raw))
	}

	periodStart := ""
	if raw, ok := firstPresent(record, periodStartAliases); ok {
		periodStart = NormalizeDate(stringify(raw))
	}
	periodEnd := ""
	if raw, ok := firstPresent(record, periodEndAliases); ok {
		periodEnd = NormalizeDate(stringify(raw))
	}

	return Transaction{
		Year:        year,
		Month:       month,
		Date:        date,
		Category:    stringField(record, categoryAliases, defaultCategory),
		Group:       stringField(record, groupAliases, ""),
		Gross:       moneyField(record, grossAliases),
		Deductions:  moneyField(record, deductionAliases),
		Net:         moneyField(record, netAliases),
		Currency:    stringField(record, currencyAliases, defaultCurrency),
		SequenceId:  stringField(record, sequenceAliases, ""),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
}

// firstPresent returns the value of the first alias that is set, non-null
// and, for strings, not blank.
func firstPresent(record Record, aliases []string) (any, bool) {
	for _, key := range aliases {
		value, ok := record[key]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return value, true
	}
	return nil, false
}

func stringField(record Record, aliases []string, fallback string) string {
	raw, ok := firstPresent(record, aliases)
	if !ok {
		return fallback
	}
	return stringify(raw)
}

func moneyField(record Record, aliases []string) int64 {
	raw, ok := firstPresent(record, aliases)
	if !ok {
		return 0
	}
	return ParseMoney(raw)
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

var thousandsSeparators = strings.NewReplacer(",", "", " ", "", "_", "")

// ParseMoney converts an amount into a non-negative whole number, rounding
// half away from zero. Thousands separators are ignored, anything that is not
// a number or does not fit into an int64 yields 0. Negative amounts are taken by magnitude since the portal
// sometimes signs deductions.
func ParseMoney(value any) int64 {
	var amount decimal.Decimal
	switch v := value.(type) {
	case string:
		cleaned := thousandsSeparators.Replace(strings.TrimSpace(v))
		if cleaned == "" {
			return 0
		}
		parsed, err := decimal.NewFromString(cleaned)
		if err != nil {
			return 0
		}
		amount = parsed
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0
		}
		amount = parsed
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		amount = decimal.NewFromFloat(v)
	case int:
		amount = decimal.NewFromInt(int64(v))
	case int64:
		amount = decimal.NewFromInt(v)
	default:
		return 0
	}
	rounded := amount.Abs().Round(0)
	if rounded.GreaterThan(maxMoney) {
		return 0
	}
	return rounded.IntPart()
}

// amounts beyond int64 are treated as unparseable
var maxMoney = decimal.NewFromInt(math.MaxInt64)

var (
	compactDate   = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	separatedDate = regexp.MustCompile(`^(\d{4})[-./](\d{1,2})[-./](\d{1,2})\.?$`)
)

// NormalizeDate rewrites YYYYMMDD and YYYY.MM.DD / YYYY/MM/DD into
// YYYY-MM-DD. Anything else is returned unchanged.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if groups := compactDate.FindStringSubmatch(raw); groups != nil {
		return fmt.Sprintf("%s-%s-%s", groups[1], groups[2], groups[3])
	}
	if groups := separatedDate.FindStringSubmatch(raw); groups != nil {
		month, _ := strconv.Atoi(groups[2])
		day, _ := strconv.Atoi(groups[3])
		return fmt.Sprintf("%s-%02d-%02d", groups[1], month, day)
	}
	return raw
}
