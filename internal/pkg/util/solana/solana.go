package solana

import (
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
)

// MaxMultipleAccounts is the getMultipleAccounts key limit.
const MaxMultipleAccounts = 100

const (
	GetMultipleAccounts         = "getMultipleAccounts"
	GetProgramAccounts          = "getProgramAccounts"
	GetSlot                     = "getSlot"
	GetLatestBlockhash          = "getLatestBlockhash"
	IsBlockhashValid            = "isBlockhashValid"
	GetSignatureStatuses        = "getSignatureStatuses"
	GetRecentPrioritizationFees = "getRecentPrioritizationFees"
	SendTransaction             = "sendTransaction"
	AccountSubscribe            = "accountSubscribe"
)

const (
	BlockCleanedUpErrCode                           = -32001
	SendTransactionPreflightFailureErrCode          = -32002
	TransactionSignatureVerificationFailureErrCode  = -32003
	BlockNotAvailableErrCode                        = -32004
	NodeUnhealthyErrCode                            = -32005
	TransactionPrecompileVerificationFailureErrCode = -32006
	SlotSkippedErrCode                              = -32007
	NoSnapshotErrCode                               = -32008
	TransactionSignatureLenMismatchErrCode          = -32013
	BlockStatusNotAvailableYetErrCode               = -32014
	UnsupportedTransactionVersionErrCode            = -32015
	MinContextSlotNotReachedErrCode                 = -32016
	ParseErrCode                                    = -32700
	InvalidRequestErrCode                           = -32600
	MethodNotFoundErrCode                           = -32601
	InvalidParamsErrCode                            = -32602
	InternalErrorErrCode                            = -32603
)

const blockhashNotFoundMsg = "Blockhash not found"

// RPCError extracts the JSON-RPC error from err, if any.
func RPCError(err error) (*jsonrpc.RPCError, bool) {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}

	return nil, false
}

// IsPermanentError reports whether err is a rejection of the request itself
// (invalid transaction, failed simulation, malformed params) that will fail
// the same way on every node and on every retry.
func IsPermanentError(err error) bool {
	rpcErr, ok := RPCError(err)
	if !ok {
		return false
	}

	switch rpcErr.Code {
	case SendTransactionPreflightFailureErrCode:
		// an expired blockhash fails preflight too, but a fresh one fixes it
		return !IsBlockhashNotFound(err)
	case TransactionSignatureVerificationFailureErrCode,
		TransactionPrecompileVerificationFailureErrCode, TransactionSignatureLenMismatchErrCode,
		UnsupportedTransactionVersionErrCode, ParseErrCode, InvalidRequestErrCode,
		MethodNotFoundErrCode:
		return true
	case InvalidParamsErrCode:
		return !strings.Contains(rpcErr.Message, "blockstore error")
	}

	return false
}

// IsBlockhashNotFound reports whether the node rejected a transaction because
// its recent blockhash is unknown or expired.
func IsBlockhashNotFound(err error) bool {
	if err == nil {
		return false
	}
	rpcErr, ok := RPCError(err)
	if ok {
		return strings.Contains(rpcErr.Message, blockhashNotFoundMsg)
	}

	return strings.Contains(err.Error(), blockhashNotFoundMsg)
}

// FormatError flattens a JSON-RPC error for logs.
func FormatError(err error) error {
	if err == nil {
		return nil
	}
	rpcErr, ok := RPCError(err)
	if !ok {
		return err
	}

	return errors.Errorf("rpcErr: code %d %s", rpcErr.Code, rpcErr.Message)
}
