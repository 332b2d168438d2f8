/*
Package contract exposes the drug and participant registries through a
named-call surface.

A Ledger owns an in-memory key value store and the same handler stack that
the drugd node runs. Each call is processed as a single transaction in its
own block: the caller principal is turned into a weave condition, the
operation arguments are turned into a message and the message is routed to
the x/participant or x/drug handlers. Read operations go straight to the
store.

	l, err := contract.NewLedger("deployer")
	res := l.Call("ST1PQ...", "manufacture-drug", "Aspirin", "ASP20230615", 1623715200, 1686787200)
	if !res.Success {
		fmt.Println(res.Error)
	}
*/
package contract
