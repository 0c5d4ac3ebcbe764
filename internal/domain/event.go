package domain

// Audit operation names. One AuditEvent is recorded per successful
// state-changing operation, never on abort.
const (
	OpCreateRound      = "CREATE_ROUND"
	OpConfigure        = "CONFIGURE"
	OpStartRaising     = "START_RAISING"
	OpBuy              = "BUY"
	OpEndRaising       = "END_RAISING"
	OpEndRefund        = "END_REFUND"
	OpDistribute       = "DISTRIBUTE_RAISED_FUND"
	OpWithdrawUnsold   = "WITHDRAW_UNSOLD_TOKEN"
	OpDepositTokenFund = "DEPOSIT_TOKEN_FUND"
	OpClaim            = "CLAIM"
	OpClaimRefund      = "CLAIM_REFUND"
	OpSetAllocation    = "SET_ALLOCATION_OVERRIDE"
	OpClearAllocation  = "CLEAR_ALLOCATION_OVERRIDE"
	OpAddWhitelist     = "ADD_WHITELIST"
	OpRemoveWhitelist  = "REMOVE_WHITELIST"
	OpAppendMilestone  = "APPEND_MILESTONE"
	OpResetMilestones  = "RESET_MILESTONES"
	OpChangeOwner      = "CHANGE_OWNER"
)

// AuditEvent is the append-only audit record of one successful operation.
// Timestamp is the clock value the decision was made against.
type AuditEvent struct {
	EventID string
	RoundID string
	Op      string
	Actor   string // acting principal, empty for purely time-driven ops

	Timestamp int64

	// Operation amount in the unit natural to the op (coin units for
	// buy/refund/distribute, token units for claim/deposit/withdraw).
	Amount uint64

	RaisedBefore uint64
	RaisedAfter  uint64
	SoldBefore   uint64
	SoldAfter    uint64

	PhaseBefore string
	PhaseAfter  string
}
