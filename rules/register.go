package rules

import (
	"github.com/rayzelltj/mer-review-agent/engine"
)

// RegisterBuiltins registers the full balance-sheet rule catalog with the
// given registry. Hosts call this once at startup; there are no import-time
// registration side effects. The registration order below is the execution
// and catalog order.
func RegisterBuiltins(registry *engine.Registry) error {
	builtins := []engine.Rule{
		BankReconciledThroughPeriodEnd{},
		UnclearedItemsInvestigatedAndFlagged{},
		UndepositedFundsZero{},
		ClearingAccountsZero{},
		ClearingAccountsNonSalesZero{},
		PlootoClearingZero{},
		PlootoInstantBalanceDisclosure{},
		PettyCashMatch{},
		APSubledgerReconciles{},
		ARSubledgerReconciles{},
		APARItemsOlderThanThreshold{},
		APARNegativeOpenItems{},
		APARIntercompanyOrShareholderPaid{},
		APARYearEndBatchAdjustments{},
		IntercompanyBalancesReconcile{},
		LoanBalanceMatch{},
		InvestmentBalanceMatch{},
		WorkingPaperReconciles{},
		TaxFilingsUpToDate{},
		TaxPayableAndSuspenseReconcileToReturn{},
		BalanceUnchangedPriorMonth{},
	}
	for _, rule := range builtins {
		if err := registry.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

// NewBuiltinRegistry builds a registry pre-loaded with the full catalog.
func NewBuiltinRegistry() *engine.Registry {
	registry := engine.NewRegistry()
	if err := RegisterBuiltins(registry); err != nil {
		panic(err)
	}
	return registry
}
