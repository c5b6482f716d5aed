package classification

import (
	"strconv"
	"strings"
)

// StockRow is one company returned by the stocks search.
type StockRow struct {
	CompanyID         Text `json:"company_id"`
	CompanyName       Text `json:"company_name"`
	Comments          Text `json:"comments"`
	MarketCapCategory Text `json:"market_cap_category"`
	BasicIndCode      Text `json:"basic_ind_code"`
	BasicIndustryName Text `json:"basic_industry_name"`
}

// ID resolves CompanyID to a positive integer.
func (r StockRow) ID() (int64, bool) {
	return ParseCompanyID(string(r.CompanyID))
}

// ParseCompanyID parses a company id, accepting only positive integers.
func ParseCompanyID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
