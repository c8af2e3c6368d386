package pipeline

// Milestone is one fixed point on the progress schedule. The list is
// strictly increasing in percent; the orchestrator emits each milestone as
// the corresponding stage finishes.
type Milestone struct {
	Percent int
	Stage   string
}

var milestones = []Milestone{
	{0, "queued"},
	{10, "loading encounter"},
	{20, "refining note"},
	{30, "extracting entities"},
	{40, "extracting coded terms"},
	{50, "filtering procedures"},
	{60, "filtering diagnoses"},
	{70, "resolving crosswalk"},
	{80, "generating suggestions"},
	{90, "computing financial delta"},
	{95, "finalizing report"},
	{100, "complete"},
}

// Milestones returns the progress schedule in order.
func Milestones() []Milestone {
	out := make([]Milestone, len(milestones))
	copy(out, milestones)
	return out
}
