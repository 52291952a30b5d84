package fields

import "billocr/pkg/bill"

// Rule is one candidate pattern for a field. Patterns match case-insensitively against
// normalized text. The value is the last capture group that matched.
type Rule struct {
	Expr string
	// NotFollowedBy rejects a match immediately followed by this expression; the scan
	// then continues after the rejected match's start.
	NotFollowedBy string
}

// FieldRules is the ordered pattern cascade for one field. The first matching rule wins.
type FieldRules struct {
	Field bill.Field
	Rules []Rule
}

// Schema is the extraction table of one bill type.
type Schema []FieldRules

// word is a letter, digit or underscore in any script.
const (
	word    = `[\p{L}\p{N}_]`
	nonWord = `[^\p{L}\p{N}_]`
)

// upperVi is the uppercase Vietnamese alphabet used by electric issuer names.
const upperVi = `A-ZÀÁẢÃẠĂẮẰẲẴẶÂẤẦẨẪẬÈÉẺẼẸÊẾỀỂỄỆÌÍỈĨỊÒÓỎÕỌÔỐỒỔỖỘƠỚỜỞỠỢÙÚỦŨỤƯỨỪỬỮỰỲÝỶỸỴĐ`

// nameVi is the letter set used by water customer names and addresses.
const nameVi = `A-ZÁÀÂÃÄĂẮẰẲẴẶÂÉÈÊẾỀỂỄẸÍÌÎÏÓÒÔÕÖƠÚÙÛÜƯÝỲỶỸỴĐa-zàáâãäăắằẳẵặâéèêếềểễẹíìîïóòôõöơúùûüưýỳỷỹỵđ`

// Electric is the schema for electricity invoices. Issuer and customer share label words,
// so customer patterns are anchored after "Tên đơn vị" and issuer patterns take the first
// occurrence of a label. Rules that need a line break only fire on text whose layout
// survived; each is followed by a rule for the collapsed single-line form. Alternatives such as "Ta:", "44đ"
// or "Cowpony" match known recognizer misreadings of the English labels.
var Electric = Schema{
	{bill.CompanyName, []Rule{
		{Expr: `CÔNG\s*TY\s*ĐIỆN\s*LỰC\s+([` + upperVi + `\s]+?)(?:\n|Mã)`},
		{Expr: `CÔNG.*?ĐIỆN.*?LỰC\s+([^\n]+?)(?:\n|Mã)`},
	}},
	{bill.CompanyTaxCode, []Rule{
		{Expr: `Mã\s*số\s*thuế[^\d]{0,50}(\d{10,13}[-\d]*)`},
		{Expr: `(?:Tax|Ta:?)[^\d]{0,30}(\d{10,13}[-\d]*)`},
	}},
	{bill.CompanyAddress, []Rule{
		{Expr: `Địa\s*chỉ[^\n:]{0,30}:\s*([^\n]+?)\n.*?(?:Điện|EVN|Thông)`},
		{Expr: `(?:Address|44đ)[^\n:]{0,30}:\s*([^\n]+?)\n`},
		{Expr: `Địa\s*chỉ[^:]{0,30}:\s*(.+?)\s*(?:Điện\s*tho|Phone|Số\s*TK|Mã\s*số\s*thuế|Email|Fax|Tên\s*đơn\s*vị)`},
	}},
	{bill.CompanyPhone, []Rule{
		{Expr: `Điện\s*th[oe][aả][iị][^\d]{0,30}(\d{7,11})`},
		{Expr: `(?:Phone|Phoae)[^\d]{0,30}(\d{7,11})`},
	}},
	{bill.CompanyBankAccount, []Rule{
		{Expr: `Số\s*TK\s*[:\s]*(\d{10,20})`},
		{Expr: `TK\s*[:\s]*(\d{10,20})`},
	}},
	{bill.InvoiceSymbol, []Rule{
		{Expr: `Ký\s*hiệu` + nonWord + `{0,30}(` + word + `+)`},
		{Expr: `(?:Serial|Szziab)` + nonWord + `{0,30}(` + word + `+)`},
	}},
	{bill.InvoiceNumber, []Rule{
		{Expr: `Số\s*\([Nn]o[^\)]*\)\s*[:\s]*(\d+)`},
		{Expr: `(?:Số|S)(?:\s*\()?[Nn]o[^\d]{0,20}(\d+)`},
	}},
	{bill.InvoiceDate, []Rule{
		{Expr: `Ngày[^\d]{0,30}(\d{2}\s*tháng[^\d]{0,30}\d{1,2}\s*năm[^\d]{0,30}\d{4})`},
		{Expr: `(?:Date|Dakc)[^\d]{0,30}(\d{2}[^\d]{0,30}\d{1,2}[^\d]{0,30}\d{4})`},
	}},
	{bill.CustomerName, []Rule{
		{Expr: `Tên\s*đơn\s*vị[^\n:]{0,50}:\s*([^\n|]+?)(?:\s*\||Mã\s*số)`},
		{Expr: `T[âa]n\s*đ[ơo]n\s*v[ịi][^\n:]{0,50}:\s*([^\n|]+?)(?:\s*\||Mã)`},
	}},
	{bill.CustomerTaxCode, []Rule{
		{Expr: `Tên\s*đơn\s*vị[^\n]+\n.*?Mã\s*số\s*thuế[^\d]{0,50}(\d{10,13})`},
		{Expr: `(?:Company|Cowpony)[^\n]+\n.*?(?:Tax|thuế)[^\d]{0,50}(\d{10,13})`},
		{Expr: `Tên\s*đơn\s*vị.*?Mã\s*số\s*thuế[^\d]{0,50}(\d{10,13})`},
		{Expr: `(?:Company|Cowpony).*?(?:Tax|thuế)[^\d]{0,50}(\d{10,13})`},
	}},
	{bill.CustomerAddress, []Rule{
		{Expr: `Tên\s*đơn\s*vị[^\n]+\n[^\n]+\n.*?Địa\s*chỉ[^\n:]{0,30}:\s*([^\n]+?)Mã\s*khách`},
		{Expr: `Tên\s*đơn\s*vị.*?Địa\s*chỉ[^:]{0,30}:\s*(.+?)\s*Mã\s*khách`},
		{Expr: `Tên\s*đơn\s*vị.*?Địa\s*chỉ[^:]{0,30}:\s*(.+?)\s*(?:Mã\s*số\s*thuế|Điện\s*tho|Số\s*TK|Hình\s*thức|Email)`},
	}},
	{bill.CustomerCode, []Rule{
		{Expr: `Mã\s*khách\s*hàng` + nonWord + `{0,50}(` + word + `{5,20})`},
		{Expr: `(?:Customer|Cxtioser)` + nonWord + `{0,50}(` + word + `{5,20})`},
	}},
	{bill.PaymentMethod, []Rule{
		{Expr: `Hình\s*thức\s*thanh\s*to[áa]n[^\n:]{0,30}:\s*([^\n,]+?)(?:\n|Đồng)`},
		{Expr: `(?:Payment|Payaes)[^\n:]{0,30}:\s*([^\n,]+)`},
	}},
	{bill.Currency, []Rule{
		{Expr: `Đồng\s*tiền[^\n:]{0,30}:\s*(VN[DĐ]|USD)`},
		{Expr: `(?:currency|cưreaey)[^\n:]{0,30}:\s*(VN[DĐ]|USD)`},
	}},
	{bill.ReadingPeriod, []Rule{
		{Expr: `từ\s*ngày\s*[/\s]*(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})\s*đến\s*ngày\s*[/\s]*(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})`},
		{Expr: `tháng\s*(\d{1,2})\s*năm\s*(\d{4})`},
	}},
	{bill.Usage, []Rule{
		{Expr: `kWh[^\d]{0,30}(\d+)`},
		{Expr: `(\d{2,4})\s*kWh`},
	}},
	{bill.Unit, []Rule{
		{Expr: `\d\s*(kWh)`},
	}},
	{bill.Subtotal, []Rule{
		{Expr: `Cộng\s*tiền\s*hàng[^\d]{0,50}([\d\.,]+)`},
		{Expr: `(?:Total|tmuóm)[^\d]{0,50}([\d\.,]+)`},
	}},
	{bill.VATRate, []Rule{
		{Expr: `Thuế\s*suất[^\d]{0,30}(\d+)\s*%`},
		{Expr: `VAT[^\d]{0,30}(\d+)\s*%`},
	}},
	{bill.VATAmount, []Rule{
		{Expr: `Tiền\s*thuế\s*GTGT[^\d]{0,50}([\d\.,]+)`},
		{Expr: `VAT[^\d]{0,30}([\d\.,]+)`, NotFollowedBy: `\s*%`},
	}},
	{bill.TotalAmount, []Rule{
		{Expr: `Tổng\s*cộng\s*tiền\s*thanh\s*toán[^\d]{0,50}([\d\.,]+)`},
		{Expr: `(?:Total|Tổng)[^\d]{0,30}([\d\.,]+)`},
	}},
	{bill.TotalInWords, []Rule{
		{Expr: `Số\s*tiền\s*bằng\s*chữ[^\n:]{0,30}:\s*([^\n]+?)\s*Người`},
		{Expr: `(?:Amount|4meown)[^\n:]{0,30}:\s*([^\n]+?)\s*Người`},
	}},
	{bill.PaymentDueDate, []Rule{
		{Expr: `Hạn\s*thanh\s*toán[^\d]{0,30}(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})`},
	}},
}

// Water is the schema for water invoices, keyed on meter-reading labels and the
// localized date and ID labels of water utilities.
var Water = Schema{
	{bill.CompanyName, []Rule{
		{Expr: `(CÔNG\s*TY[^\n]*?NƯỚC[^\n]*?)(?:\s*Ký\s*hiệu|\s*Địa\s*chỉ|\n|$)`},
	}},
	{bill.CompanyTaxCode, []Rule{
		{Expr: `Mã\s*(?:số|số\s*thuế)[^\d]{0,10}(\d{10,13})`},
	}},
	{bill.CompanyAddress, []Rule{
		{Expr: `Địa\s*chỉ[:\s]*([A-Z0-9].*?)(?:\s*Số[:\s]|Mã\s*số\s*thuế|HÓA\s*ĐƠN|\n|$)`},
	}},
	{bill.InvoiceSymbol, []Rule{
		{Expr: `Ký\s*hiệu[:\s]*([A-Z0-9]{5,})`},
	}},
	{bill.InvoiceNumber, []Rule{
		{Expr: `Số[:\s]*(\d{6,})`},
	}},
	{bill.InvoiceDate, []Rule{
		{Expr: `Ngày\s*ký[:\s]*(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})`},
		{Expr: `Ngày\s+(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})`},
	}},
	{bill.CustomerName, []Rule{
		{Expr: `Tên\s*(?:khách\s*hàng|kh)\s*[:\-\s]*([` + nameVi + `0-9\s\.\-]{2,120}?)(?:\s*(?:Mã|Địa|Tài|Mã số|Thời|Số|$|\n|,|\.))`},
		{Expr: `(?:Họ\s*tên|Khách\s*hàng)[:\s]*([` + nameVi + `\s\.\-]{2,120}?)(?:\s*(?:Mã|Địa|Tài|Mã số|Thời|Số|$|\n|,|\.))`},
	}},
	{bill.CustomerAddress, []Rule{
		{Expr: `Địa\s*chỉ\s*[:\-]?\s*([` + nameVi + `0-9\s/\.,\-\(\)]{2,200}?)(?:\s*(?:Mã|Tài|Thời|Số|Phí|Tổng|$|\n|,|\.))`},
		{Expr: `(?:Địa\s*điểm|Nơi\s*sử\s*dụng)\s*[:\-]?\s*([A-Z0-9a-zÀ-ỹ/\s\.,\-]{2,200}?)(?:\s*(?:Mã|Tài|Thời|Số|Phí|Tổng|$|\n|,|\.))`},
	}},
	{bill.CustomerCode, []Rule{
		{Expr: `Mã\s*(?:số\s*)?khách\s*hàng[:\s]*([0-9A-Z]+)`},
	}},
	{bill.OldReading, []Rule{
		{Expr: `Số\s*Đọc\s*Tháng\s*Trước[^\d]{0,10}(\d+)`},
	}},
	{bill.NewReading, []Rule{
		{Expr: `Số\s*Đọc\s*Tháng\s*Này[^\d]{0,10}(\d+)`},
	}},
	{bill.Usage, []Rule{
		{Expr: `Số\s*Lượng\s*Tiêu\s*Thụ[^\d]{0,10}(\d+)`},
		{Expr: `Tiêu\s*thụ[:\s]*([0-9]+)`},
	}},
	{bill.Unit, []Rule{
		{Expr: `\d\s*(m3|m³)`},
	}},
	{bill.EnvFee, []Rule{
		{Expr: `Phí\s*(?:BVMT|bảo\s*vệ\s*môi\s*trường)[^\d]{0,10}([\d\.]+)`},
	}},
	{bill.Subtotal, []Rule{
		{Expr: `Cộng\s*(?:tiền\s*hàng|tiền)[^\d]{0,20}([\d\.,]+)`},
	}},
	{bill.VATRate, []Rule{
		{Expr: `Thuế\s*Suất[:\s]*(\d+)\s*%`},
	}},
	{bill.TotalAmount, []Rule{
		{Expr: `Tổng\s*(?:tiền\s*thanh\s*toán|cộng)[^\d]{0,20}([\d\.,]+)`},
	}},
	{bill.TotalInWords, []Rule{
		{Expr: `Số\s*tiền\s*bằng\s*chữ[:\s]*([^\n]+)`},
	}},
	{bill.PaymentDueDate, []Rule{
		{Expr: `Hạn\s*thanh\s*toán[^\d]{0,30}(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})`},
	}},
}
