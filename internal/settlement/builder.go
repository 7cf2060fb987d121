package settlement

import (
	"dolgi/internal/core"
)

// NetBalances aggregates unpaid debt records into per-currency signed net
// balances in minor units: each share subtracts from the debtor and adds to
// the creditor, so every currency's balances sum to zero by construction.
//
// Currency codes are normalized on the way in (trim, upper-case, empty →
// defaultCurrency). Self-debt rows are ignored wherever encountered. Zero
// amounts contribute nothing and are skipped; a negative stored amount is
// malformed input and fails the build. An empty input yields no currencies.
func NetBalances(records []core.DebtRecord, defaultCurrency string) (map[string]map[int64]int64, error) {
	balances := make(map[string]map[int64]int64)
	for _, rec := range records {
		if rec.DebtorID == rec.CreditorID {
			continue
		}
		if rec.AmountCents < 0 {
			return nil, &MalformedAmountError{ShareID: rec.ShareID, AmountCents: rec.AmountCents}
		}
		if rec.AmountCents == 0 {
			continue
		}
		cur := core.NormalizeCurrency(rec.Currency, defaultCurrency)
		byUser := balances[cur]
		if byUser == nil {
			byUser = make(map[int64]int64)
			balances[cur] = byUser
		}
		byUser[rec.DebtorID] -= rec.AmountCents
		byUser[rec.CreditorID] += rec.AmountCents
	}
	return balances, nil
}
