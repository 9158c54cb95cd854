package quotations

// Operation names a lifecycle command.
type Operation string

const (
	OpCreate        Operation = "create"
	OpUpdate        Operation = "update"
	OpSubmit        Operation = "submit"
	OpApprove       Operation = "approve"
	OpReject        Operation = "reject"
	OpRequestChange Operation = "request_change"
	OpResend        Operation = "resend"
	OpArchive       Operation = "archive"
	OpRestore       Operation = "restore"
	OpHardDelete    Operation = "hard_delete"
)

type rule struct {
	from          map[QuoteStatus]bool // nil allows any status
	to            QuoteStatus          // empty keeps the current status
	requireActive bool
	customer      bool
}

func statuses(list ...QuoteStatus) map[QuoteStatus]bool {
	set := make(map[QuoteStatus]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

var holdingStatuses = statuses(QuoteStatusDraft, QuoteStatusPresented, QuoteStatusChangeRequested)

var transitions = map[Operation]rule{
	OpUpdate:        {from: holdingStatuses},
	OpSubmit:        {from: statuses(QuoteStatusDraft, QuoteStatusChangeRequested), to: QuoteStatusPresented, requireActive: true},
	OpApprove:       {from: statuses(QuoteStatusPresented), to: QuoteStatusApproved, requireActive: true, customer: true},
	OpReject:        {from: statuses(QuoteStatusPresented), to: QuoteStatusRejected, requireActive: true, customer: true},
	OpRequestChange: {from: statuses(QuoteStatusPresented), to: QuoteStatusChangeRequested, requireActive: true, customer: true},
	OpResend:        {from: statuses(QuoteStatusDraft, QuoteStatusPresented, QuoteStatusChangeRequested, QuoteStatusRejected), to: QuoteStatusPresented},
	OpArchive:       {},
	OpRestore:       {},
	OpHardDelete:    {},
}

// Holds reports whether a quote in this state keeps stock reserved.
func Holds(status QuoteStatus, isActive bool) bool {
	return isActive && holdingStatuses[status]
}

// CustomerOperation reports whether op is performed by the quote's customer.
func CustomerOperation(op Operation) bool {
	return transitions[op].customer
}

// Next returns the status a quote moves to when op is applied, or an
// InvalidTransition error when op is not allowed from the given state.
func Next(op Operation, current QuoteStatus, isActive bool) (QuoteStatus, error) {
	r, ok := transitions[op]
	if !ok {
		return current, ErrInvalidStatus
	}
	if r.requireActive && !isActive {
		return current, ErrArchived
	}
	if r.from != nil && !r.from[current] {
		return current, ErrInvalidStatus
	}
	if r.to == "" {
		return current, nil
	}
	return r.to, nil
}
