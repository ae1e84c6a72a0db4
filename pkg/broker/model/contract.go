package model

import "github.com/shopspring/decimal"

type SecurityType string

const (
	SecurityTypeStock  SecurityType = "STK"
	SecurityTypeFuture SecurityType = "FUT"
	SecurityTypeOption SecurityType = "OPT"
	SecurityTypeForex  SecurityType = "CASH"
)

// Contract identifies a tradable instrument. Symbol plus security type plus
// exchange is usually enough; ambiguous contracts resolve to several
// ContractDetails.
type Contract struct {
	ContractID   int64
	Symbol       string
	SecurityType SecurityType
	Exchange     string
	Currency     string
	LocalSymbol  string
	SecurityID   string
}

// ContractDetails is the broker's full description of one matching contract.
type ContractDetails struct {
	Contract       Contract
	MarketName     string
	LongName       string
	MinTick        decimal.Decimal
	ValidExchanges string
	TradingHours   string
}
