// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/flasharb/business/execution/app"
	execEth "github.com/fd1az/flasharb/business/execution/infra/ethereum"
	"github.com/fd1az/flasharb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Pipeline = di.NewToken[*app.Pipeline]("execution.Pipeline")
	Monitor  = di.NewToken[*app.Monitor]("execution.Monitor")
)

// Private dependency tokens - internal to execution module
var (
	Wallet      = di.NewToken[*execEth.Wallet]("execution:wallet")
	NonceSource = di.NewToken[app.NonceSource]("execution:nonceSource")
	Submitter   = di.NewToken[app.Submitter]("execution:submitter")
	Confirmer   = di.NewToken[app.Confirmer]("execution:confirmer")
	TxBuilder   = di.NewToken[*app.TxBuilder]("execution:txBuilder")
	Recovery    = di.NewToken[*app.Recovery]("execution:recovery")
)

// Helper functions for type-safe access
func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

func GetMonitor(c di.ServiceRegistry) *app.Monitor {
	return di.GetToken(c, Monitor)
}

func GetWallet(c di.ServiceRegistry) *execEth.Wallet {
	return di.GetToken(c, Wallet)
}

func GetNonceSource(c di.ServiceRegistry) app.NonceSource {
	return di.GetToken(c, NonceSource)
}

func GetSubmitter(c di.ServiceRegistry) app.Submitter {
	return di.GetToken(c, Submitter)
}

func GetConfirmer(c di.ServiceRegistry) app.Confirmer {
	return di.GetToken(c, Confirmer)
}

func GetTxBuilder(c di.ServiceRegistry) *app.TxBuilder {
	return di.GetToken(c, TxBuilder)
}

func GetRecovery(c di.ServiceRegistry) *app.Recovery {
	return di.GetToken(c, Recovery)
}
