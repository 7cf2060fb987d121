package settlement

import (
	"sort"

	"dolgi/internal/core"
)

// Solve reduces one currency's net balances to an ordered list of transfers
// that returns every balance to exactly zero.
//
// Participants with nonzero balance are partitioned into debtors (negative)
// and creditors (positive), each sorted by id ascending; the first debtor
// pays the first creditor min(|debtor|, creditor) and whichever side reaches
// zero advances. For k participants with nonzero balance this emits at most
// k-1 transfers. A directed cycle of equal debts nets to a zero balance for
// everyone on it and produces no transfer at all, which is why explicit
// cycle cancellation over the raw pairwise graph is unnecessary.
//
// Fixed ordering keeps output deterministic for identical inputs, so
// re-running a plan against an unchanged ledger reproduces it exactly.
func Solve(balances map[int64]int64, currency string) []core.Transfer {
	var debtors, creditors []int64
	for id, net := range balances {
		switch {
		case net < 0:
			debtors = append(debtors, id)
		case net > 0:
			creditors = append(creditors, id)
		}
	}
	sort.Slice(debtors, func(i, j int) bool { return debtors[i] < debtors[j] })
	sort.Slice(creditors, func(i, j int) bool { return creditors[i] < creditors[j] })

	owed := make(map[int64]int64, len(balances))
	for id, net := range balances {
		if net < 0 {
			owed[id] = -net
		} else {
			owed[id] = net
		}
	}

	var transfers []core.Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := debtors[i], creditors[j]
		amount := owed[debtor]
		if owed[creditor] < amount {
			amount = owed[creditor]
		}
		if amount > 0 && debtor != creditor {
			transfers = append(transfers, core.Transfer{
				From:     debtor,
				To:       creditor,
				Amount:   core.Money{Cents: amount},
				Currency: currency,
			})
		}
		owed[debtor] -= amount
		owed[creditor] -= amount
		if owed[debtor] == 0 {
			i++
		}
		if owed[creditor] == 0 {
			j++
		}
	}
	return transfers
}

// Currencies returns the currency keys of a balance set in sorted order, so
// a multi-currency run always emits its transfers in the same sequence.
func Currencies(balances map[string]map[int64]int64) []string {
	keys := make([]string, 0, len(balances))
	for cur := range balances {
		keys = append(keys, cur)
	}
	sort.Strings(keys)
	return keys
}
