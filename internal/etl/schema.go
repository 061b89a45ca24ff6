package etl

// Workbook layout contract. Sheet and column names are matched
// case/accent-insensitively; column order inside a sheet is irrelevant.
const (
	SheetBase      = "BASE"
	SheetMarket    = "MERCADO"
	SheetSource    = "ORIGEM"
	SheetLocation  = "LOCAL"
	SheetSize      = "PORTE"
	SheetObjective = "OBJETIVO"
)

// Column headers per sheet. ColLeadID is the shared business key.
const (
	ColLeadID    = "LEAD_ID"
	ColCreatedAt = "DATA CADASTRO"
	ColSold      = "VENDIDO"
	ColMarket    = "MERCADO"
	ColSource    = "ORIGEM"
	ColSubSource = "SUB-ORIGEM"
	ColLocation  = "LOCAL"
	ColSize      = "PORTE"
	ColObjective = "OBJETIVO"
)