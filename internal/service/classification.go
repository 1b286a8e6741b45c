package service

import (
	"strings"

	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// Default sector labels
const (
	SectorDiversified   = "Diversified"
	SectorFixedIncome   = "Fixed Income"
	SectorDigitalAssets = "Digital Assets"
	SectorCash          = "Cash"
	SectorUnclassified  = "Unclassified"
)

// assetClassSynonyms maps normalized stored classes onto asset types
var assetClassSynonyms = map[string]types.AssetType{
	"stock":                types.AssetStock,
	"stocks":               types.AssetStock,
	"equity":               types.AssetStock,
	"equities":             types.AssetStock,
	"common stock":         types.AssetStock,
	"preferred stock":      types.AssetStock,
	"share":                types.AssetStock,
	"shares":               types.AssetStock,
	"adr":                  types.AssetStock,
	"etf":                  types.AssetETF,
	"etfs":                 types.AssetETF,
	"exchange traded fund": types.AssetETF,
	"index fund":           types.AssetETF,
	"mutual fund":          types.AssetETF,
	"fund":                 types.AssetETF,
	"bond":                 types.AssetBond,
	"bonds":                types.AssetBond,
	"fixed income":         types.AssetBond,
	"treasury":             types.AssetBond,
	"treasuries":           types.AssetBond,
	"note":                 types.AssetBond,
	"gic":                  types.AssetBond,
	"crypto":               types.AssetCrypto,
	"cryptocurrency":       types.AssetCrypto,
	"coin":                 types.AssetCrypto,
	"token":                types.AssetCrypto,
	"digital asset":        types.AssetCrypto,
	"cash":                 types.AssetCash,
	"money market":         types.AssetCash,
	"cash equivalent":      types.AssetCash,
	"currency":             types.AssetCash,
	"savings":              types.AssetCash,
}

var (
	knownETFSymbols = map[string]struct{}{
		"SPY": {}, "VOO": {}, "IVV": {}, "VTI": {}, "QQQ": {}, "IWM": {}, "DIA": {},
		"VEA": {}, "VWO": {}, "EFA": {}, "XEQT": {}, "VEQT": {}, "XIU": {}, "VFV": {},
		"BND": {}, "AGG": {}, "TLT": {}, "VGRO": {}, "VBAL": {},
	}
	knownCryptoSymbols = map[string]struct{}{
		"BTC": {}, "ETH": {}, "SOL": {}, "ADA": {}, "XRP": {}, "DOGE": {}, "DOT": {}, "LTC": {},
		"USDC": {}, "USDT": {},
	}
	knownCashSymbols = map[string]struct{}{
		"CASH": {}, "USD": {}, "CAD": {}, "EUR": {}, "SPAXX": {}, "VMFXX": {}, "FDRXX": {},
	}
)

// sectorBySymbol covers widely held tickers when the security has no stored sector
var sectorBySymbol = map[string]string{
	"AAPL":  "Technology",
	"MSFT":  "Technology",
	"NVDA":  "Technology",
	"AMD":   "Technology",
	"INTC":  "Technology",
	"ORCL":  "Technology",
	"CRM":   "Technology",
	"SHOP":  "Technology",
	"GOOG":  "Communication Services",
	"GOOGL": "Communication Services",
	"META":  "Communication Services",
	"NFLX":  "Communication Services",
	"DIS":   "Communication Services",
	"AMZN":  "Consumer Discretionary",
	"TSLA":  "Consumer Discretionary",
	"HD":    "Consumer Discretionary",
	"NKE":   "Consumer Discretionary",
	"MCD":   "Consumer Discretionary",
	"PG":    "Consumer Staples",
	"KO":    "Consumer Staples",
	"PEP":   "Consumer Staples",
	"WMT":   "Consumer Staples",
	"COST":  "Consumer Staples",
	"JPM":   "Financials",
	"BAC":   "Financials",
	"V":     "Financials",
	"MA":    "Financials",
	"BRK.B": "Financials",
	"RY":    "Financials",
	"TD":    "Financials",
	"JNJ":   "Health Care",
	"UNH":   "Health Care",
	"PFE":   "Health Care",
	"LLY":   "Health Care",
	"XOM":   "Energy",
	"CVX":   "Energy",
	"ENB":   "Energy",
	"CAT":   "Industrials",
	"BA":    "Industrials",
	"GE":    "Industrials",
	"NEE":   "Utilities",
	"AMT":   "Real Estate",
	"LIN":   "Materials",
}

// ClassifyAssetType collapses a stored asset class into the fixed AssetType
// set. The symbol is consulted only when the class is empty or unrecognized.
func ClassifyAssetType(assetClass, symbol string) types.AssetType {
	class := normalizeClass(assetClass)
	if at, ok := assetClassSynonyms[class]; ok {
		return at
	}

	sym := strings.ToUpper(strings.TrimSpace(symbol))
	base := strings.TrimSuffix(sym, "-USD")
	switch {
	case sym == "":
		return types.AssetOther
	case isKnown(knownCashSymbols, sym):
		return types.AssetCash
	case isKnown(knownCryptoSymbols, sym), strings.HasSuffix(sym, "-USD") && isKnown(knownCryptoSymbols, base):
		return types.AssetCrypto
	case isKnown(knownETFSymbols, sym):
		return types.AssetETF
	case class == "" && isKnown(sectorBySymbolSet, sym):
		return types.AssetStock
	}
	return types.AssetOther
}

// InferSector prefers the stored sector, then the ticker table, then a default
// for the asset type
func InferSector(security *models.Security, assetType types.AssetType) string {
	if security != nil {
		if security.Sector != nil && strings.TrimSpace(*security.Sector) != "" {
			return strings.TrimSpace(*security.Sector)
		}
		if sector, ok := sectorBySymbol[strings.ToUpper(strings.TrimSpace(security.Symbol))]; ok {
			return sector
		}
	}

	switch assetType {
	case types.AssetETF:
		return SectorDiversified
	case types.AssetBond:
		return SectorFixedIncome
	case types.AssetCrypto:
		return SectorDigitalAssets
	case types.AssetCash:
		return SectorCash
	default:
		return SectorUnclassified
	}
}

var sectorBySymbolSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(sectorBySymbol))
	for sym := range sectorBySymbol {
		set[sym] = struct{}{}
	}
	return set
}()

func normalizeClass(class string) string {
	c := strings.ToLower(strings.TrimSpace(class))
	c = strings.NewReplacer("_", " ", "-", " ").Replace(c)
	return strings.Join(strings.Fields(c), " ")
}

func isKnown(set map[string]struct{}, symbol string) bool {
	_, ok := set[symbol]
	return ok
}
