package engine

import "errors"

// Input errors: the caller gave the operation something it can never
// satisfy, regardless of Store state.
var (
	ErrPasswordNotMatch           = errors.New("engine: password does not match")
	ErrNotEnoughPublicKeys        = errors.New("engine: a policy requires at least two cosigners")
	ErrUnexpectedProposal         = errors.New("engine: proposal kind does not support this operation")
	ErrSignerDescriptorAlreadyExists = errors.New("engine: signer descriptor already exists")
	ErrSignerAlreadyShared        = errors.New("engine: signer already shared with this recipient")
)

// Not-found errors: the operation's target doesn't exist in the Store.
var (
	ErrPolicyNotFound          = errors.New("engine: policy not found")
	ErrProposalNotFound        = errors.New("engine: proposal not found")
	ErrApprovedProposalNotFound = errors.New("engine: approved proposal not found")
	ErrSignerNotFound          = errors.New("engine: signer not found")
	ErrSharedKeyNotFound       = errors.New("engine: shared key not found")
	ErrPublicKeyNotFound       = errors.New("engine: public key not found among cosigners")
	ErrSignerIdNotFound        = errors.New("engine: signer id not found")
)

// State errors: the operation is individually well-formed but the engine's
// current state forbids it.
var (
	ErrConnectRequestAlreadyApproved = errors.New("engine: connect request already approved")
	ErrCantGenerateConnectResponse   = errors.New("engine: cannot generate a connect response for this method")
	ErrElectrumEndpointNotSet        = errors.New("engine: electrum endpoint not configured")
	ErrInsufficientApprovals         = errors.New("engine: not enough approvals to finalize")
)
