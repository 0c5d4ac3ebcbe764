package domain

// VestingKind selects how claimable percentage accrues over time.
type VestingKind int

const (
	// VestingMilestoneUnlockFirst releases UnlockPercent at TGE, then
	// milestone percents once the cliff has passed.
	VestingMilestoneUnlockFirst VestingKind = iota

	// VestingMilestoneCliffFirst releases nothing until TGE+cliff, then
	// UnlockPercent plus reached milestone percents.
	VestingMilestoneCliffFirst

	// VestingLinearUnlockFirst releases UnlockPercent at TGE, then the
	// remainder linearly over LinearDuration after the cliff.
	VestingLinearUnlockFirst

	// VestingLinearCliffFirst releases nothing until TGE+cliff, then
	// UnlockPercent plus the linear remainder.
	VestingLinearCliffFirst
)

// Valid reports whether k is within the known enum range.
func (k VestingKind) Valid() bool {
	return k >= VestingMilestoneUnlockFirst && k <= VestingLinearCliffFirst
}

// Milestone reports whether k is one of the milestone-based kinds.
func (k VestingKind) Milestone() bool {
	return k == VestingMilestoneUnlockFirst || k == VestingMilestoneCliffFirst
}

func (k VestingKind) String() string {
	switch k {
	case VestingMilestoneUnlockFirst:
		return "MILESTONE_UNLOCK_FIRST"
	case VestingMilestoneCliffFirst:
		return "MILESTONE_CLIFF_FIRST"
	case VestingLinearUnlockFirst:
		return "LINEAR_UNLOCK_FIRST"
	case VestingLinearCliffFirst:
		return "LINEAR_CLIFF_FIRST"
	default:
		return "UNKNOWN"
	}
}

// VestingMilestone is a dated percentage grant. Percent is in FullPercent scale.
type VestingMilestone struct {
	Time    int64  `json:"time"`
	Percent uint64 `json:"percent"`
}

// VestingSchedule describes when purchased tokens become claimable.
// Times are Unix milliseconds, percents are in FullPercent scale.
type VestingSchedule struct {
	Kind VestingKind `json:"kind"`

	TGE            int64  `json:"tge"`             // token-generation-event anchor, strictly future when set
	CliffDuration  int64  `json:"cliff_duration"`  // delay after TGE, >= 0
	UnlockPercent  uint64 `json:"unlock_percent"`  // released at the kind's unlock point
	LinearDuration int64  `json:"linear_duration"` // accrual window for linear kinds, > 0

	// Milestones are kept sorted by strictly increasing Time.
	Milestones []VestingMilestone `json:"milestones,omitempty"`
}

// MilestonePercentSum returns UnlockPercent plus all milestone percents.
func (s *VestingSchedule) MilestonePercentSum() uint64 {
	sum := s.UnlockPercent
	for _, m := range s.Milestones {
		sum += m.Percent
	}
	return sum
}

// Clone returns a deep copy of the schedule.
func (s *VestingSchedule) Clone() *VestingSchedule {
	c := *s
	if s.Milestones != nil {
		c.Milestones = make([]VestingMilestone, len(s.Milestones))
		copy(c.Milestones, s.Milestones)
	}
	return &c
}
